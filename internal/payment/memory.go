package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

// MemoryGateway keeps sessions in process. It backs local runs without a
// Stripe key and tests. With AutoPay set, new sessions are created already paid.
type MemoryGateway struct {
	AutoPay bool

	mu       sync.Mutex
	sessions map[string]Session
	lookups  int
}

func NewMemoryGateway(autoPay bool) *MemoryGateway {
	return &MemoryGateway{AutoPay: autoPay, sessions: map[string]Session{}}
}

// Put stores or replaces a session.
func (g *MemoryGateway) Put(s Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.ID] = s
}

// MarkPaid flips an existing session to paid.
func (g *MemoryGateway) MarkPaid(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[id]; ok {
		s.PaymentStatus = StatusPaid
		g.sessions[id] = s
	}
}

// Lookups counts RetrieveSession calls.
func (g *MemoryGateway) Lookups() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookups
}

func (g *MemoryGateway) RetrieveSession(ctx context.Context, ref string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	s, ok := g.sessions[ref]
	if !ok {
		return Session{}, fmt.Errorf("session %s: %w", ref, domain.ErrNotFound)
	}
	return s, nil
}

func (g *MemoryGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	var subtotal int64
	for _, li := range req.LineItems {
		subtotal += li.UnitAmount * li.Quantity
	}
	s := Session{
		ID:             "cs_mem_" + uuid.NewString(),
		PaymentStatus:  "unpaid",
		Metadata:       req.Metadata,
		AmountSubtotal: subtotal,
		AmountTotal:    subtotal + req.ShippingCost,
		CustomerEmail:  req.Email,
	}
	if g.AutoPay {
		s.PaymentStatus = StatusPaid
	}
	s.URL = req.SuccessURL
	if s.URL != "" {
		s.URL = fillSessionID(s.URL, s.ID)
	}
	g.Put(s)
	return s, nil
}
