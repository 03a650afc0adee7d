package extensibility

import "github.com/dop251/goja"

func gojaFunc(p *JSProgram, name string) (func() (goja.Value, error), bool) {
	fn, ok := goja.AssertFunction(p.vm.Get(name))
	if !ok {
		return nil, false
	}
	return func() (goja.Value, error) { return fn(goja.Undefined()) }, true
}
