package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repairdesk/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(c *clock) *MemoryStore {
	s := NewMemoryStore(time.Hour, time.Minute)
	s.now = c.now
	return s
}

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour, time.Hour)

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Put(ctx, 1, &Draft{Flow: FlowTicket, Step: StepDescription, Equipment: "Scale"}))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Scale", got.Equipment)
	assert.False(t, got.UpdatedAt.IsZero())

	got.Equipment = "mutated"
	again, _ := s.Get(ctx, 1)
	assert.Equal(t, "Scale", again.Equipment, "stored draft is a copy")

	require.NoError(t, s.Delete(ctx, 1))
	got, _ = s.Get(ctx, 1)
	assert.Nil(t, got)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := newTestStore(c)

	require.NoError(t, s.Put(ctx, 1, &Draft{Flow: FlowTicket, Step: StepEquipment}))
	require.NoError(t, s.Put(ctx, 2, &Draft{Flow: FlowTicket, Step: StepEquipment}))

	c.t = c.t.Add(30 * time.Minute)
	require.NoError(t, s.Put(ctx, 2, &Draft{Flow: FlowTicket, Step: StepDescription}))

	c.t = c.t.Add(45 * time.Minute)
	got, _ := s.Get(ctx, 1)
	assert.Nil(t, got, "draft past its TTL is gone")

	assert.Equal(t, 0, s.Sweep())
	got, _ = s.Get(ctx, 2)
	assert.NotNil(t, got, "refreshed draft survives")

	c.t = c.t.Add(time.Hour)
	assert.Equal(t, 1, s.Sweep())
}

func TestMemoryStore_FirstSeenBatch(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	s := newTestStore(c)

	first, err := s.FirstSeenBatch(ctx, "album-1")
	require.NoError(t, err)
	assert.True(t, first)

	for i := 0; i < 3; i++ {
		again, err := s.FirstSeenBatch(ctx, "album-1")
		require.NoError(t, err)
		assert.False(t, again)
	}

	other, _ := s.FirstSeenBatch(ctx, "album-2")
	assert.True(t, other)

	c.t = c.t.Add(2 * time.Minute)
	s.Sweep()
	reused, _ := s.FirstSeenBatch(ctx, "album-1")
	assert.True(t, reused, "expired batch ids are forgotten")
}

func TestDraft_Navigation(t *testing.T) {
	d := &Draft{
		Flow:        FlowTicket,
		Step:        StepPhoto,
		Equipment:   "CCTV",
		Description: "no signal",
		Urgency:     domain.UrgencyHigh,
		PhotoRef:    "file-1",
	}

	prev, ok := d.PreviousStep()
	require.True(t, ok)
	assert.Equal(t, StepUrgency, prev)

	d.ClearFrom(prev)
	assert.Equal(t, "CCTV", d.Equipment)
	assert.Equal(t, "no signal", d.Description)
	assert.Empty(t, d.Urgency)
	assert.Empty(t, d.PhotoRef)

	d.Step = StepEquipment
	_, ok = d.PreviousStep()
	assert.False(t, ok)

	reg := &Draft{Flow: FlowRegistration, Step: StepLocation, Name: "Anna"}
	prev, ok = reg.PreviousStep()
	require.True(t, ok)
	assert.Equal(t, StepName, prev)
}

func TestDraft_Request(t *testing.T) {
	d := &Draft{Equipment: "other: printer", Description: "jam", Urgency: domain.UrgencyNormal}
	req := d.Request()
	assert.Equal(t, "other: printer", req.Equipment)
	assert.Empty(t, req.PhotoRef)
}

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "repairdesk:draft:42", draftKey(42))
	assert.Equal(t, "repairdesk:batch:abc", batchKey("abc"))
}
