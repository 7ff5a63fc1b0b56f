package subagent

// Observer receives run lifecycle events. Implementations must be fast and
// must not panic; they run inline with the dispatch path.
type Observer interface {
	RunStarted(mode string, req Request)
	RunFinished(mode string, req Request, result Result)
}

type nopObserver struct{}

func (nopObserver) RunStarted(string, Request)          {}
func (nopObserver) RunFinished(string, Request, Result) {}
