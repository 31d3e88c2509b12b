package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 图谱引擎Prometheus指标，promauto注册到默认Registry
var (
	// QueriesProcessed 摄取管线处理的查询总数，status: ok / failed
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_queries_processed_total",
			Help: "Total number of queries run through the ingestion pipeline",
		},
		[]string{"status"},
	)

	// PipelineStageDuration 管线各阶段耗时，stage: embed / store / classify / match / analyze / persist
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_pipeline_stage_duration_seconds",
			Help:    "Duration of ingestion pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// TopicsCreated 新建话题总数
	TopicsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_topics_created_total",
			Help: "Total number of topics created by the classifier",
		},
	)

	// SourcesMerged 去重合并掉的来源总数
	SourcesMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_sources_merged_total",
			Help: "Total number of duplicate sources merged away",
		},
	)

	// DirectionsFinished 研究方向终态计数，status: completed / exhausted / failed
	DirectionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_research_directions_finished_total",
			Help: "Total number of research directions reaching a terminal state",
		},
		[]string{"status"},
	)

	// SchedulerCycles 调度器运行轮数，status: ok / failed
	SchedulerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_scheduler_cycles_total",
			Help: "Total number of scheduler cycles executed",
		},
		[]string{"status"},
	)

	// ExternalCallErrors 外部协作方调用失败计数，provider: embedding / analysis / labeler / search / vector_store
	ExternalCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_external_call_errors_total",
			Help: "Total number of failed calls to external collaborators",
		},
		[]string{"provider"},
	)
)
