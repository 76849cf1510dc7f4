package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/courier-backend/internal/gateway"
	"github.com/unclebandit/courier-backend/internal/model"
	"github.com/unclebandit/courier-backend/internal/repository"

	appErrors "github.com/unclebandit/courier-backend/internal/errors"
)

// fakeMessageRepo is an in-memory ledger with the same transition semantics
// as the real repository.
type fakeMessageRepo struct {
	mu          sync.Mutex
	nextID      int
	msgs        map[int]*model.Message
	byExternal  map[string]int
	byCampRecip map[[2]int]int
	history     []model.StatusHistoryEntry
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		msgs:        map[int]*model.Message{},
		byExternal:  map[string]int{},
		byCampRecip: map[[2]int]int{},
	}
}

func (f *fakeMessageRepo) Record(msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := [2]int{msg.CampaignID, msg.RecipientID}
	if id, ok := f.byCampRecip[key]; ok {
		*msg = *f.msgs[id]
		return nil
	}

	f.nextID++
	msg.ID = f.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.UpdatedAt = msg.CreatedAt

	stored := *msg
	f.msgs[msg.ID] = &stored
	f.byCampRecip[key] = msg.ID
	if msg.ExternalID != "" {
		f.byExternal[msg.ExternalID] = msg.ID
	}
	f.history = append(f.history, model.StatusHistoryEntry{
		MessageID: msg.ID, Status: msg.Status, ObservedAt: msg.CreatedAt,
	})
	return nil
}

func (f *fakeMessageRepo) ApplyStatus(messageID int, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok {
		return nil, false, fmt.Errorf("no message %d", messageID)
	}
	return f.apply(msg, status, observedAt, lastError)
}

func (f *fakeMessageRepo) ApplyStatusByExternalID(externalID string, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byExternal[externalID]
	if !ok {
		return nil, false, appErrors.NewUnknownReference(externalID)
	}
	return f.apply(f.msgs[id], status, observedAt, lastError)
}

func (f *fakeMessageRepo) apply(msg *model.Message, status model.MessageStatus, observedAt time.Time, lastError string) (*model.Message, bool, error) {
	f.history = append(f.history, model.StatusHistoryEntry{
		MessageID: msg.ID, Status: status, ObservedAt: observedAt,
	})
	applied := model.CanTransition(msg.Status, status)
	if applied {
		msg.Status = status
		msg.LastError = lastError
		msg.UpdatedAt = observedAt
	}
	out := *msg
	return &out, applied, nil
}

func (f *fakeMessageRepo) ListByCampaign(campaignID int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Message{}
	for id := 1; id <= f.nextID; id++ {
		if m, ok := f.msgs[id]; ok && m.CampaignID == campaignID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) ListStalled(olderThan time.Time) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Message{}
	for id := 1; id <= f.nextID; id++ {
		if m, ok := f.msgs[id]; ok && m.Status == model.StatusSent && m.CreatedAt.Before(olderThan) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) CountsByCampaign(campaignID int) (repository.CampaignCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c repository.CampaignCounts
	for _, m := range f.msgs {
		if m.CampaignID != campaignID {
			continue
		}
		c.Total++
		switch m.Status {
		case model.StatusDelivered:
			c.Delivered++
		case model.StatusRead:
			c.Delivered++
			c.Read++
		case model.StatusFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (f *fakeMessageRepo) HistoryByMessage(messageID int) ([]*model.StatusHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.StatusHistoryEntry{}
	for i := range f.history {
		if f.history[i].MessageID == messageID {
			cp := f.history[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeCampaignRepo keeps campaigns in memory and records aggregate writes.
type fakeCampaignRepo struct {
	mu              sync.Mutex
	campaigns       map[int]*model.Campaign
	aggregateWrites int
}

func newFakeCampaignRepo(campaigns ...*model.Campaign) *fakeCampaignRepo {
	repo := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}}
	for _, c := range campaigns {
		repo.campaigns[c.ID] = c
	}
	return repo
}

func (f *fakeCampaignRepo) Create(c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = len(f.campaigns) + 1
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) ListCampaigns(offset, limit, tenantID int, status string) ([]*model.Campaign, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := []*model.Campaign{}
	for id := 1; id <= len(f.campaigns); id++ {
		if c, ok := f.campaigns[id]; ok && c.TenantID == tenantID {
			if status != "" && string(c.Status) != status {
				continue
			}
			cp := *c
			all = append(all, &cp)
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeCampaignRepo) UpdateAggregates(campaignID int, status model.CampaignStatus, delivered, failed, read int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = status
	c.DeliveredCount = delivered
	c.FailedCount = failed
	c.ReadCount = read
	f.aggregateWrites++
	return nil
}

// fakeRecipientRepo serves a fixed set of recipients.
type fakeRecipientRepo struct {
	recipients map[int]*model.Recipient
}

func (f *fakeRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	return f.recipients[id], nil
}

func (f *fakeRecipientRepo) ListIDsByTenant(tenantID int) ([]int, error) {
	ids := []int{}
	for id, r := range f.recipients {
		if r.TenantID == tenantID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fakeNotifier records every push.
type pushedEvent struct {
	TenantID int
	Event    model.Event
	Excluded []string
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []pushedEvent
}

func (f *fakeNotifier) Push(tenantID int, event model.Event, excludeConnectionID ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushedEvent{TenantID: tenantID, Event: event, Excluded: excludeConnectionID})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

// fakeGateway delegates to a per-test function.
type fakeGateway struct {
	send func(recipient *model.Recipient, payload string) (*gateway.SendResult, error)
}

func (f *fakeGateway) Send(ctx context.Context, recipient *model.Recipient, payload string) (*gateway.SendResult, error) {
	return f.send(recipient, payload)
}
