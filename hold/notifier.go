package hold

import "sync"

// Notifier wakes up monitors that wait on a payment hash.
type Notifier struct {
	sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: map[string]map[chan struct{}]struct{}{}}
}

// Subscribe returns a channel that is closed on the next Notify for
// paymentHash. The returned cancel func must be called once the channel is
// no longer needed.
func (n *Notifier) Subscribe(paymentHash string) (<-chan struct{}, func()) {
	n.Lock()
	defer n.Unlock()
	ch := make(chan struct{})
	if n.subs[paymentHash] == nil {
		n.subs[paymentHash] = map[chan struct{}]struct{}{}
	}
	n.subs[paymentHash][ch] = struct{}{}

	return ch, func() {
		n.Lock()
		defer n.Unlock()
		subs, ok := n.subs[paymentHash]
		if !ok {
			return
		}
		delete(subs, ch)
		if len(subs) == 0 {
			delete(n.subs, paymentHash)
		}
	}
}

// Notify wakes every current subscriber of paymentHash.
func (n *Notifier) Notify(paymentHash string) {
	n.Lock()
	defer n.Unlock()
	for ch := range n.subs[paymentHash] {
		close(ch)
	}
	delete(n.subs, paymentHash)
}
