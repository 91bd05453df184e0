package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/repository/memory"
	"github.com/ignite/outreach-core/internal/pkg/distlock"
	"github.com/ignite/outreach-core/internal/service/escalation"
	"github.com/ignite/outreach-core/internal/worker"
)

func testConfig() *config.Config {
	return &config.Config{
		Gate:       config.GateConfig{BatchConcurrency: 4},
		Escalation: config.EscalationConfig{MaxSteps: 3},
		Scheduler:  config.SchedulerConfig{LockTTLSeconds: 60},
		Personas: []domain.Persona{
			{ID: "o", Name: "O", Role: domain.RoleOpener, ChannelIdentity: "+15550000001"},
			{ID: "n", Name: "N", Role: domain.RoleNudger, ChannelIdentity: "+15550000002"},
			{ID: "c", Name: "C", Role: domain.RoleCloser, ChannelIdentity: "+15550000003"},
		},
		Campaigns: []config.CampaignConfig{{
			ID: "spring", Channel: domain.ChannelSMS,
			Steps: []domain.SequenceStep{{Number: 1, Body: "Hi {{first_name}}"}},
		}},
	}
}

func TestNew_InMemoryDryRun(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.IsType(t, &memory.Store{}, a.Contacts)
	assert.Equal(t, []domain.Channel{domain.ChannelSMS, domain.ChannelVoice, domain.ChannelEmail}, a.Transport.Channels())

	ctx := context.Background()
	require.NoError(t, a.Contacts.UpsertContact(ctx, &domain.Contact{ID: "c1", Phone: "+15550100001", FirstName: "Pat"}))
	report, err := a.Sequencer.Enroll(ctx, "spring", []string{"c1"})
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, report.Enrolled)

	st, err := a.Sequencer.GetState(ctx, "c1", "spring")
	require.NoError(t, err)
	res, err := a.Sequencer.SendNextMessage(ctx, st)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dryrun-c1:spring:1", res.ProviderMessageID)
}

func TestNew_InMemorySchedulerTickUsesLocalLocks(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()
	require.Nil(t, a.DB)
	require.Nil(t, a.Redis)

	_, isLocal := a.Locks("outreach:test").(*distlock.LocalLock)
	require.True(t, isLocal)

	ctx := context.Background()
	require.NoError(t, a.Contacts.UpsertContact(ctx, &domain.Contact{ID: "c1", Phone: "+15550100001", FirstName: "Pat"}))
	_, err = a.Sequencer.Enroll(ctx, "spring", []string{"c1"})
	require.NoError(t, err)

	report := worker.NewEscalationScheduler(a.Sequencer, a.States, a.Locks).Tick(ctx)
	require.Len(t, report.Campaigns, 1)
	assert.False(t, report.Campaigns[0].Locked)
	assert.NoError(t, report.Campaigns[0].Err)
	assert.Equal(t, 1, report.Sent())
}

func TestNew_WithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	ok, err := a.Locks("outreach:test").Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Personas = cfg.Personas[:2]
	_, err := New(context.Background(), cfg)
	assert.Error(t, err, "every role needs a persona")

	cfg = testConfig()
	cfg.SMSProvider.Enabled = true
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_RateLimitsPerSendingNumber(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.RateLimits.SMS = config.RateLimitConfig{PerDay: 1}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.Contacts.UpsertContact(ctx, &domain.Contact{ID: "c1", Phone: "+15550100001"}))
	require.NoError(t, a.Contacts.UpsertContact(ctx, &domain.Contact{ID: "c2", Phone: "+15550100002"}))
	_, err = a.Sequencer.Enroll(ctx, "spring", []string{"c1", "c2"})
	require.NoError(t, err)

	st1, err := a.Sequencer.GetState(ctx, "c1", "spring")
	require.NoError(t, err)
	res, err := a.Sequencer.SendNextMessage(ctx, st1)
	require.NoError(t, err)
	assert.True(t, res.Success)

	st2, err := a.Sequencer.GetState(ctx, "c2", "spring")
	require.NoError(t, err)
	res, err = a.Sequencer.SendNextMessage(ctx, st2)
	assert.ErrorIs(t, err, escalation.ErrTransport)
	assert.Contains(t, res.Error, "rate limit exceeded")

	st2, err = a.Sequencer.GetState(ctx, "c2", "spring")
	require.NoError(t, err)
	assert.Equal(t, 0, st2.CurrentStep)
}
