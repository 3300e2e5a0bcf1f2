package gateway

import (
	"fmt"

	"github.com/pressplay/payments/internal/domain"
)

// Manager is the provider registry. Registration happens once at startup;
// after that the manager is read-only and safe for concurrent use.
type Manager struct {
	defaultName string
	gateways    map[string]PaymentGateway
}

func NewManager(defaultName string) *Manager {
	return &Manager{
		defaultName: defaultName,
		gateways:    make(map[string]PaymentGateway),
	}
}

func (m *Manager) Register(gw PaymentGateway) {
	m.gateways[gw.Name()] = gw
}

// Resolve returns the gateway for name, falling back to the platform default
// when name is empty.
func (m *Manager) Resolve(name string) (PaymentGateway, error) {
	if name == "" {
		name = m.defaultName
	}
	gw, ok := m.gateways[name]
	if !ok {
		return nil, fmt.Errorf("Resolve: %q: %w", name, domain.ErrUnknownGateway)
	}
	return gw, nil
}

// ResolveSubscriptions returns the named gateway's subscription facet.
// Providers without subscription support fail with ErrUnknownGateway.
func (m *Manager) ResolveSubscriptions(name string) (SubscriptionGateway, error) {
	gw, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	sub, ok := gw.(SubscriptionGateway)
	if !ok {
		return nil, fmt.Errorf("ResolveSubscriptions: %q has no subscription support: %w", gw.Name(), domain.ErrUnknownGateway)
	}
	return sub, nil
}

func (m *Manager) DefaultName() string { return m.defaultName }
