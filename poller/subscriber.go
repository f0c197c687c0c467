package poller

// Subscriber handles event subscriptions.
type Subscriber struct {
	done                    chan struct{}
	fetchStartedHandler     func(FetchStarted)
	fetchSucceededHandler   func(FetchSucceeded)
	fetchFailedHandler      func(FetchFailed)
	fetchCancelledHandler   func(FetchCancelled)
	retryScheduledHandler   func(RetryScheduled)
	retriesExhaustedHandler func(RetriesExhausted)
	realtimeAppliedHandler  func(RealtimeApplied)
	realtimeErrorHandler    func(RealtimeError)
	cacheSeededHandler      func(CacheSeeded)
	cacheErrorHandler       func(CacheError)
	shutdownHandler         func(Shutdown)
}

// OnFetchStarted sets the handler for FetchStarted events
func OnFetchStarted(fn func(FetchStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.fetchStartedHandler = fn }
}

// OnFetchSucceeded sets the handler for FetchSucceeded events
func OnFetchSucceeded(fn func(FetchSucceeded)) func(*Subscriber) {
	return func(s *Subscriber) { s.fetchSucceededHandler = fn }
}

// OnFetchFailed sets the handler for FetchFailed events
func OnFetchFailed(fn func(FetchFailed)) func(*Subscriber) {
	return func(s *Subscriber) { s.fetchFailedHandler = fn }
}

// OnFetchCancelled sets the handler for FetchCancelled events
func OnFetchCancelled(fn func(FetchCancelled)) func(*Subscriber) {
	return func(s *Subscriber) { s.fetchCancelledHandler = fn }
}

// OnRetryScheduled sets the handler for RetryScheduled events
func OnRetryScheduled(fn func(RetryScheduled)) func(*Subscriber) {
	return func(s *Subscriber) { s.retryScheduledHandler = fn }
}

// OnRetriesExhausted sets the handler for RetriesExhausted events
func OnRetriesExhausted(fn func(RetriesExhausted)) func(*Subscriber) {
	return func(s *Subscriber) { s.retriesExhaustedHandler = fn }
}

// OnRealtimeApplied sets the handler for RealtimeApplied events
func OnRealtimeApplied(fn func(RealtimeApplied)) func(*Subscriber) {
	return func(s *Subscriber) { s.realtimeAppliedHandler = fn }
}

// OnRealtimeError sets the handler for RealtimeError events
func OnRealtimeError(fn func(RealtimeError)) func(*Subscriber) {
	return func(s *Subscriber) { s.realtimeErrorHandler = fn }
}

// OnCacheSeeded sets the handler for CacheSeeded events
func OnCacheSeeded(fn func(CacheSeeded)) func(*Subscriber) {
	return func(s *Subscriber) { s.cacheSeededHandler = fn }
}

// OnCacheError sets the handler for CacheError events
func OnCacheError(fn func(CacheError)) func(*Subscriber) {
	return func(s *Subscriber) { s.cacheErrorHandler = fn }
}

// OnShutdown sets the handler for Shutdown events
func OnShutdown(fn func(Shutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.shutdownHandler = fn }
}

// NewSubscriber creates a Subscriber with the given options and starts the dispatch loop.
// Returns a closer function that waits for all events to be processed.
//
// Example:
//
//	closer := poller.NewSubscriber(events,
//	  poller.OnFetchFailed(func(e poller.FetchFailed) { ... }),
//	)
//	defer closer()  // Ensures all events processed before exit
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:                    make(chan struct{}),
		fetchStartedHandler:     func(FetchStarted) {},
		fetchSucceededHandler:   func(FetchSucceeded) {},
		fetchFailedHandler:      func(FetchFailed) {},
		fetchCancelledHandler:   func(FetchCancelled) {},
		retryScheduledHandler:   func(RetryScheduled) {},
		retriesExhaustedHandler: func(RetriesExhausted) {},
		realtimeAppliedHandler:  func(RealtimeApplied) {},
		realtimeErrorHandler:    func(RealtimeError) {},
		cacheSeededHandler:      func(CacheSeeded) {},
		cacheErrorHandler:       func(CacheError) {},
		shutdownHandler:         func(Shutdown) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case FetchStarted:
				s.fetchStartedHandler(e)
			case FetchSucceeded:
				s.fetchSucceededHandler(e)
			case FetchFailed:
				s.fetchFailedHandler(e)
			case FetchCancelled:
				s.fetchCancelledHandler(e)
			case RetryScheduled:
				s.retryScheduledHandler(e)
			case RetriesExhausted:
				s.retriesExhaustedHandler(e)
			case RealtimeApplied:
				s.realtimeAppliedHandler(e)
			case RealtimeError:
				s.realtimeErrorHandler(e)
			case CacheSeeded:
				s.cacheSeededHandler(e)
			case CacheError:
				s.cacheErrorHandler(e)
			case Shutdown:
				s.shutdownHandler(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
