package toolchain

import "context"

// Fake is a scriptable Toolchain for worker tests. Every method records its
// call and returns the error scripted for it, if any.
type Fake struct {
	IsInstalled bool
	Errs        map[string]error
	Calls       []string

	// Models tracks which model names exist after Create/Copy, so Show can
	// answer realistically.
	Models map[string]bool

	// ShowResults, when non-empty, scripts successive Show outcomes ahead
	// of the Models lookup.
	ShowResults []error
}

// NewFake returns a Fake that reports the tool as installed and ready.
func NewFake() *Fake {
	return &Fake{
		IsInstalled: true,
		Errs:        make(map[string]error),
		Models:      make(map[string]bool),
	}
}

func (f *Fake) record(call string) error {
	f.Calls = append(f.Calls, call)
	return f.Errs[call]
}

func (f *Fake) Installed() bool { return f.IsInstalled }

func (f *Fake) Install(ctx context.Context) error {
	if err := f.record("install"); err != nil {
		return err
	}
	f.IsInstalled = true
	return nil
}

func (f *Fake) WaitReady(ctx context.Context, attempts int) error {
	return f.record("ready")
}

func (f *Fake) Create(ctx context.Context, model, modelfile, quantize string) error {
	if err := f.record("create " + model); err != nil {
		return err
	}
	f.Models[model] = true
	return nil
}

func (f *Fake) Show(ctx context.Context, model string) error {
	if err := f.record("show " + model); err != nil {
		return err
	}
	if len(f.ShowResults) > 0 {
		res := f.ShowResults[0]
		f.ShowResults = f.ShowResults[1:]
		return res
	}
	if !f.Models[model] {
		return &commandError{op: "show", output: []byte("model not found")}
	}
	return nil
}

func (f *Fake) Copy(ctx context.Context, src, dst string) error {
	if err := f.record("cp " + src + " " + dst); err != nil {
		return err
	}
	f.Models[dst] = true
	return nil
}

func (f *Fake) Push(ctx context.Context, model string) error {
	return f.record("push " + model)
}
