package task

import (
	"fmt"
	"reflect"
)

// Func 任务业务函数（对外导出）
type Func func(tc *TaskContext) (any, error)

var (
	taskContextType = reflect.TypeOf((*TaskContext)(nil))
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
)

// WrapFunc 将任意函数包装为 Func（对外导出）
// 支持两种签名：
//  1. func(tc *TaskContext) error
//  2. func(tc *TaskContext) (result, error)
func WrapFunc(fn any) (Func, error) {
	if f, ok := fn.(Func); ok {
		return f, nil
	}
	if f, ok := fn.(func(*TaskContext) (any, error)); ok {
		return f, nil
	}

	fnValue := reflect.ValueOf(fn)
	if !fnValue.IsValid() || fnValue.Kind() != reflect.Func {
		return nil, fmt.Errorf("参数必须是函数类型，当前类型: %T", fn)
	}
	fnType := fnValue.Type()
	if fnType.NumIn() != 1 || fnType.In(0) != taskContextType {
		return nil, fmt.Errorf("函数必须只有一个*TaskContext参数，当前签名: %v", fnType)
	}

	numOut := fnType.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("函数必须返回 error 或 (result, error)，当前签名: %v", fnType)
	}
	if !fnType.Out(numOut - 1).Implements(errorType) {
		return nil, fmt.Errorf("函数最后一个返回值必须是error，当前类型: %v", fnType.Out(numOut-1))
	}

	return func(tc *TaskContext) (any, error) {
		out := fnValue.Call([]reflect.Value{reflect.ValueOf(tc)})
		var err error
		if e := out[numOut-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		if numOut == 1 {
			return nil, err
		}
		return out[0].Interface(), err
	}, nil
}
