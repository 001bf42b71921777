package wallet

import (
	"sync"

	"imuabridge/events"

	log "github.com/sirupsen/logrus"
)

// SessionStore persists the active account across restarts
type SessionStore interface {
	LoadActiveAccount() (string, error)
	SaveActiveAccount(account string) error
	ClearActiveAccount() error
}

type SessionChange struct {
	Account     string
	Network     string
	PrevAccount string
	PrevNetwork string
}

func (c SessionChange) AccountChanged() bool {
	return c.Account != c.PrevAccount
}

// Session holds the connected account and network. Anything may read or
// subscribe, only the Adapter writes.
type Session struct {
	mu      sync.RWMutex
	account string
	network string
	store   SessionStore
	bus     *events.Bus[SessionChange]
}

// NewSession accepts a nil store, nothing is persisted then
func NewSession(store SessionStore) *Session {
	return &Session{
		store: store,
		bus:   events.NewBus[SessionChange](),
	}
}

// Restore loads the last active account, the network stays unknown until a provider reports it
func (s *Session) Restore() error {
	if s.store == nil {
		return nil
	}
	account, err := s.store.LoadActiveAccount()
	if err != nil {
		return err
	}
	if account == "" {
		return nil
	}

	// already persisted, only announce it
	s.mu.Lock()
	change := SessionChange{Account: account, Network: s.network, PrevAccount: s.account, PrevNetwork: s.network}
	s.account = account
	s.mu.Unlock()

	if change.AccountChanged() {
		s.bus.Publish(change)
	}
	return nil
}

func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) Network() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network
}

func (s *Session) Subscribe(fn func(SessionChange)) func() {
	return s.bus.Subscribe(fn)
}

// update applies nil-means-unchanged values atomically
func (s *Session) update(account, network *string) {
	s.mu.Lock()
	change := SessionChange{
		Account:     s.account,
		Network:     s.network,
		PrevAccount: s.account,
		PrevNetwork: s.network,
	}
	if account != nil {
		change.Account = *account
	}
	if network != nil {
		change.Network = *network
	}
	s.account = change.Account
	s.network = change.Network
	s.mu.Unlock()

	if change.Account == change.PrevAccount && change.Network == change.PrevNetwork {
		return
	}

	if s.store != nil && change.AccountChanged() {
		var err error
		if change.Account == "" {
			err = s.store.ClearActiveAccount()
		} else {
			err = s.store.SaveActiveAccount(change.Account)
		}
		if err != nil {
			// the in-memory session stays authoritative
			log.Printf("Error persisting active account: %s", err.Error())
		}
	}

	s.bus.Publish(change)
}

func (s *Session) set(account, network string) {
	s.update(&account, &network)
}

func (s *Session) setAccount(account string) {
	s.update(&account, nil)
}

func (s *Session) setNetwork(network string) {
	s.update(nil, &network)
}

func (s *Session) clear() {
	s.set("", "")
}
