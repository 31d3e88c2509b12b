package di

import (
	"errors"

	"go.uber.org/dig"
)

// Container 全局依赖容器，进程内唯一，由bootstrap在启动时构建
var Container *dig.Container

// InitContainer 创建容器并替换全局实例
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

// GetContainer 获取全局容器
func GetContainer() *dig.Container {
	return Container
}

// Invoke 在全局容器上执行注入函数，未初始化时返回错误而非panic
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	if Container == nil {
		return errors.New("di container not initialized")
	}
	return Container.Invoke(function, opts...)
}

// Provide 向全局容器注册提供者
func Provide(constructor interface{}, opts ...dig.ProvideOption) error {
	if Container == nil {
		return errors.New("di container not initialized")
	}
	return Container.Provide(constructor, opts...)
}
