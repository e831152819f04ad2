package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/zf-portal/leadflow/server/classifier"
	"github.com/zf-portal/leadflow/server/gateway"
	"github.com/zf-portal/leadflow/server/session"
	"github.com/zf-portal/leadflow/store"
)

// tuesdayMorning is a weekday inside business hours (UTC config in tests).
var tuesdayMorning = time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu sync.Mutex

	leads        map[int32]*store.Lead
	interactions []*store.Interaction
	messages     map[int32]*store.ScheduledMessage
	templates    []*store.FunnelTemplate

	nextMessageID     int32
	nextInteractionID int32

	listDueErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:    map[int32]*store.Lead{},
		messages: map[int32]*store.ScheduledMessage{},
	}
}

func (f *fakeStore) GetLead(ctx context.Context, find *store.FindLead) (*store.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if find.ID != nil {
		if lead, ok := f.leads[*find.ID]; ok {
			copied := *lead
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListLeadsByStage(ctx context.Context, stage store.FunnelStage, limit int) ([]*store.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.Lead{}
	for _, lead := range f.leads {
		if lead.Stage == stage && len(list) < limit {
			copied := *lead
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (f *fakeStore) ListLeadsForClassification(ctx context.Context, staleBefore int64, limit int) ([]*store.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.Lead{}
	for _, lead := range f.leads {
		stale := lead.LastClassifiedTs == nil || *lead.LastClassifiedTs < staleBefore
		if stale && len(list) < limit {
			copied := *lead
			list = append(list, &copied)
		}
	}
	return list, nil
}

func (f *fakeStore) UpdateFunnelStage(ctx context.Context, id int32, stage store.FunnelStage, score int) (*store.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return nil, nil
	}
	now := time.Now().Unix()
	if lead.Stage != stage {
		lead.EnteredStageTs = now
	}
	lead.Stage = stage
	lead.Score = score
	lead.LastClassifiedTs = &now
	copied := *lead
	return &copied, nil
}

func (f *fakeStore) TouchLastContact(ctx context.Context, id int32, ts int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lead, ok := f.leads[id]; ok {
		lead.LastContactTs = &ts
	}
	return nil
}

func (f *fakeStore) ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.Interaction{}
	for _, interaction := range f.interactions {
		if find.LeadID != nil && interaction.LeadID != *find.LeadID {
			continue
		}
		if find.Direction != nil && interaction.Direction != *find.Direction {
			continue
		}
		if find.CreatedAfter != nil && interaction.CreatedTs <= *find.CreatedAfter {
			continue
		}
		list = append(list, interaction)
	}
	return list, nil
}

func (f *fakeStore) ListOutboundSince(ctx context.Context, leadID int32, since int64) ([]*store.Interaction, error) {
	outbound := store.DirectionOutbound
	return f.ListInteractions(ctx, &store.FindInteraction{
		LeadID:       &leadID,
		Direction:    &outbound,
		CreatedAfter: &since,
	})
}

func (f *fakeStore) CreateInteraction(ctx context.Context, create *store.Interaction) (*store.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextInteractionID++
	create.ID = f.nextInteractionID
	f.interactions = append(f.interactions, create)
	return create, nil
}

func (f *fakeStore) CreateScheduledMessage(ctx context.Context, create *store.ScheduledMessage) (*store.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMessageID++
	create.ID = f.nextMessageID
	if create.Status == "" {
		create.Status = store.MessagePending
	}
	f.messages[create.ID] = create
	return create, nil
}

func (f *fakeStore) ListScheduledMessages(ctx context.Context, find *store.FindScheduledMessage) ([]*store.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.ScheduledMessage{}
	for _, message := range f.messages {
		if find.LeadID != nil && message.LeadID != *find.LeadID {
			continue
		}
		if find.Status != nil && message.Status != *find.Status {
			continue
		}
		if find.ScheduledBefore != nil && message.ScheduledTs > *find.ScheduledBefore {
			continue
		}
		list = append(list, message)
	}
	// Ascending by scheduled time, matching the driver's drain ordering.
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].ScheduledTs < list[i].ScheduledTs {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	return list, nil
}

func (f *fakeStore) ListScheduledMessagesDue(ctx context.Context, now int64) ([]*store.ScheduledMessage, error) {
	if f.listDueErr != nil {
		return nil, f.listDueErr
	}
	pending := store.MessagePending
	return f.ListScheduledMessages(ctx, &store.FindScheduledMessage{
		Status:          &pending,
		ScheduledBefore: &now,
	})
}

func (f *fakeStore) MarkScheduledMessage(ctx context.Context, update *store.UpdateScheduledMessageStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[update.ID]
	if !ok || message.Status != update.ExpectedStatus {
		return false, nil
	}
	message.Status = update.Status
	message.SentTs = update.SentTs
	return true, nil
}

func (f *fakeStore) ListFunnelTemplatesByStage(ctx context.Context, stage store.FunnelStage) ([]*store.FunnelTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.FunnelTemplate{}
	for _, template := range f.templates {
		if template.Stage == stage {
			list = append(list, template)
		}
	}
	return list, nil
}

type fakeSender struct {
	mu       sync.Mutex
	sendErr  error
	sent     []string
	sentText []string
}

func (f *fakeSender) StartSession(ctx context.Context) error { return nil }
func (f *fakeSender) Status(ctx context.Context) (*gateway.StatusReply, error) {
	return &gateway.StatusReply{Status: gateway.StatusConnected}, nil
}
func (f *fakeSender) AuthChallenge(ctx context.Context) (string, error) { return "", nil }
func (f *fakeSender) StopSession(ctx context.Context) error             { return nil }
func (f *fakeSender) LogoutSession(ctx context.Context) error           { return nil }

func (f *fakeSender) SendText(ctx context.Context, recipient, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, recipient)
	f.sentText = append(f.sentText, text)
	return "wamid-1", nil
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) RenderRef(ctx context.Context, templateID int32, params map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "rendered " + params["nome"], nil
}

type fixture struct {
	store    *fakeStore
	sender   *fakeSender
	renderer *fakeRenderer
	runner   *Runner

	status session.Status
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store:    newFakeStore(),
		sender:   &fakeSender{},
		renderer: &fakeRenderer{},
		status:   session.StatusConnected,
		now:      tuesdayMorning,
	}
	fx.runner = NewRunner(
		fx.store,
		fx.renderer,
		classifier.NewHeuristic(),
		fx.sender,
		func() session.Status { return fx.status },
		Config{Timezone: time.UTC, SendsPerMinute: 100000},
	)
	fx.runner.now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) addLead(id int32, stage store.FunnelStage) *store.Lead {
	lead := &store.Lead{
		ID:              id,
		Name:            "Ana",
		ChannelIdentity: "5511999999999@c.us",
		Stage:           stage,
		EnteredStageTs:  fx.now.Add(-30 * 24 * time.Hour).Unix(),
	}
	fx.store.leads[id] = lead
	return lead
}

func (fx *fixture) addPendingMessage(leadID int32, content string, due time.Time) *store.ScheduledMessage {
	message := &store.ScheduledMessage{
		LeadID:      leadID,
		Content:     &content,
		ScheduledTs: due.Unix(),
		Status:      store.MessagePending,
	}
	created, _ := fx.store.CreateScheduledMessage(context.Background(), message)
	return created
}

func TestDrainSendsDueMessages(t *testing.T) {
	fx := newFixture(t)
	fx.addLead(1, store.StageAttraction)
	message := fx.addPendingMessage(1, "olá Ana", fx.now.Add(-time.Minute))

	fx.runner.RunDrain(context.Background())

	require.Equal(t, 1, fx.sender.sendCount())
	require.Equal(t, []string{"olá Ana"}, fx.sender.sentText)
	require.Equal(t, store.MessageSent, fx.store.messages[message.ID].Status)
	require.NotNil(t, fx.store.messages[message.ID].SentTs)

	// Outbound interaction recorded and last contact touched.
	require.Len(t, fx.store.interactions, 1)
	require.Equal(t, store.DirectionOutbound, fx.store.interactions[0].Direction)
	require.NotNil(t, fx.store.leads[1].LastContactTs)
}

func TestDrainSkipsFutureMessages(t *testing.T) {
	fx := newFixture(t)
	fx.addLead(1, store.StageAttraction)
	message := fx.addPendingMessage(1, "mais tarde", fx.now.Add(time.Hour))

	fx.runner.RunDrain(context.Background())

	require.Zero(t, fx.sender.sendCount())
	require.Equal(t, store.MessagePending, fx.store.messages[message.ID].Status)
}

func TestDrainOutsideBusinessHours(t *testing.T) {
	fx := newFixture(t)
	fx.addLead(1, store.StageAttraction)
	message := fx.addPendingMessage(1, "olá", fx.now.Add(-time.Minute))

	for _, at := range []time.Time{
		time.Date(2025, 1, 21, 7, 59, 0, 0, time.UTC),  // before opening
		time.Date(2025, 1, 21, 18, 0, 0, 0, time.UTC),  // after closing
		time.Date(2025, 1, 25, 10, 0, 0, 0, time.UTC),  // Saturday
		time.Date(2025, 1, 26, 10, 0, 0, 0, time.UTC),  // Sunday
	} {
		fx.now = at
		fx.runner.RunDrain(context.Background())
	}

	require.Zero(t, fx.sender.sendCount())
	require.Equal(t, store.MessagePending, fx.store.messages[message.ID].Status)
}

func TestDrainStopsWhenWindowClosesMidBatch(t *testing.T) {
	fx := newFixture(t)
	fx.addLead(1, store.StageAttraction)
	fx.addLead(2, store.StageAttraction)
	first := fx.addPendingMessage(1, "primeiro", fx.now.Add(-2*time.Minute))
	second := fx.addPendingMessage(2, "segundo", fx.now.Add(-time.Minute))

	// The clock jumps past closing after each observation; the first message
	// goes out, the rest of the batch stays pending.
	calls := 0
	fx.runner.now = func() time.Time {
		calls++
		if calls <= 3 {
			return tuesdayMorning
		}
		return time.Date(2025, 1, 21, 18, 1, 0, 0, time.UTC)
	}

	fx.runner.RunDrain(context.Background())

	require.Equal(t, 1, fx.sender.sendCount())
	require.Equal(t, store.MessageSent, fx.store.messages[first.ID].Status)
	require.Equal(t, store.MessagePending, fx.store.messages[second.ID].Status)
}

func TestDrainLeavesBatchPendingWhenNotConnected(t *testing.T) {
	fx := newFixture(t)
	fx.status = session.StatusDisconnected
	fx.addLead(1, store.StageAttraction)
	message := fx.addPendingMessage(1, "olá", fx.now.Add(-time.Minute))

	fx.runner.RunDrain(context.Background())

	require.Zero(t, fx.sender.sendCount())
	require.Equal(t, store.MessagePending, fx.store.messages[message.ID].Status)
}

func TestDrainFailsMessageWithoutContentOrTemplate(t *testing.T) {
	fx := newFixture(t)
	fx.addLead(1, store.StageAttraction)
	fx.addLead(2, store.StageAttraction)

	empty := &store.ScheduledMessage{LeadID: 1, ScheduledTs: fx.now.Add(-2 * time.Minute).Unix(), Status: store.MessagePending}
	fx.store.CreateScheduledMessage(context.Background(), empty)
	valid := fx.addPendingMessage(2, "olá", fx.now.Add(-time.Minute))

	fx.runner.RunDrain(context.Background())

	// The empty message fails without a gateway call; the batch continues.
	require.Equal(t, store.MessageFailed, fx.store.messages[empty.ID].Status)
	require.Equal(t, store.MessageSent, fx.store.messages[valid.ID].Status)
	require.Equal(t, 1, fx.sender.sendCount())
}

func TestDrainFailsMessageOnRenderError(t *testing.T) {
	fx := newFixture(t)
	fx.renderer.err = errors.New("template missing")
	fx.addLead(1, store.StageAttraction)

	templateID := int32(7)
	message := &store.ScheduledMessage{
		LeadID:      1,
		TemplateID:  &templateID,
		ScheduledTs: fx.now.Add(-time.Minute).Unix(),
		Status:      store.MessagePending,
	}
	fx.store.CreateScheduledMessage(context.Background(), message)

	fx.runner.RunDrain(context.Background())

	require.Equal(t, store.MessageFailed, fx.store.messages[message.ID].Status)
	require.Zero(t, fx.sender.sendCount())
}

func TestDrainFailsMessageForLeadWithoutIdentity(t *testing.T) {
	fx := newFixture(t)
	lead := fx.addLead(1, store.StageAttraction)
	lead.ChannelIdentity = ""
	message := fx.addPendingMessage(1, "olá", fx.now.Add(-time.Minute))

	fx.runner.RunDrain(context.Background())

	require.Equal(t, store.MessageFailed, fx.store.messages[message.ID].Status)
	require.Zero(t, fx.sender.sendCount())
}

func TestDrainFailsMessageOnGatewayError(t *testing.T) {
	fx := newFixture(t)
	fx.sender.sendErr = errors.New("waha unreachable")
	fx.addLead(1, store.StageAttraction)
	message := fx.addPendingMessage(1, "olá", fx.now.Add(-time.Minute))

	fx.runner.RunDrain(context.Background())

	require.Equal(t, store.MessageFailed, fx.store.messages[message.ID].Status)
	require.Empty(t, fx.store.interactions)
}

func TestOnboardingEnqueuesWelcome(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageAttraction, Position: 0, Content: "Olá {{nome}}"},
		{ID: 2, Stage: store.StageAttraction, Position: 1, Content: "follow"},
	}
	fx.addLead(1, store.StageAttraction)

	fx.runner.RunOnboarding(context.Background())

	pending := fx.pendingMessages()
	require.Len(t, pending, 1)
	require.Equal(t, int32(1), pending[0].LeadID)
	require.NotNil(t, pending[0].TemplateID)
	require.Equal(t, int32(1), *pending[0].TemplateID)
	require.Equal(t, "Ana", pending[0].Params["nome"])

	// Randomized delay stays in the 15-45 minute band.
	delay := pending[0].ScheduledTs - fx.now.Unix()
	require.GreaterOrEqual(t, delay, int64(15*60))
	require.LessOrEqual(t, delay, int64(45*60))
}

func TestOnboardingSkipsRecentlyContacted(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageAttraction, Position: 0, Content: "Olá"},
	}
	fx.addLead(1, store.StageAttraction)
	fx.store.interactions = append(fx.store.interactions, &store.Interaction{
		LeadID:    1,
		Type:      store.InteractionMessage,
		Direction: store.DirectionOutbound,
		CreatedTs: fx.now.Add(-2 * time.Hour).Unix(),
	})

	fx.runner.RunOnboarding(context.Background())

	require.Empty(t, fx.pendingMessages())
}

func TestOnboardingSkipsLeadsWithQueuedMessage(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageAttraction, Position: 0, Content: "Olá"},
	}
	fx.addLead(1, store.StageAttraction)
	fx.addPendingMessage(1, "já na fila", fx.now.Add(time.Hour))

	fx.runner.RunOnboarding(context.Background())

	require.Len(t, fx.pendingMessages(), 1)
}

func TestOnboardingHonorsCap(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageAttraction, Position: 0, Content: "Olá"},
	}
	for i := int32(1); i <= 30; i++ {
		fx.addLead(i, store.StageAttraction)
	}

	fx.runner.RunOnboarding(context.Background())

	require.Len(t, fx.pendingMessages(), 20)
}

func TestFollowUpWaitsAndDelay(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageConversion, Position: 0, Content: "abertura"},
		{ID: 2, Stage: store.StageConversion, Position: 1, Content: "fechamento"},
	}

	// In conversion for 5 days with no outbound: past the 2-day wait.
	ready := fx.addLead(7, store.StageConversion)
	ready.EnteredStageTs = fx.now.Add(-5 * 24 * time.Hour).Unix()

	// Entered conversion yesterday: not yet.
	fresh := fx.addLead(8, store.StageConversion)
	fresh.EnteredStageTs = fx.now.Add(-24 * time.Hour).Unix()

	fx.runner.RunFollowUp(context.Background())

	pending := fx.pendingMessages()
	require.Len(t, pending, 1)
	require.Equal(t, ready.ID, pending[0].LeadID)
	require.Equal(t, int32(2), *pending[0].TemplateID)

	// Deterministic spread: 90 + leadID%60 minutes.
	delay := pending[0].ScheduledTs - fx.now.Unix()
	require.Equal(t, int64((90+7)*60), delay)
}

func TestFollowUpFallsBackToOpenerTemplate(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageRelationship, Position: 0, Content: "abertura"},
	}
	lead := fx.addLead(3, store.StageRelationship)
	lead.EnteredStageTs = fx.now.Add(-10 * 24 * time.Hour).Unix()

	fx.runner.RunFollowUp(context.Background())

	pending := fx.pendingMessages()
	require.Len(t, pending, 1)
	require.Equal(t, int32(1), *pending[0].TemplateID)
}

func TestFollowUpSkipsRecentOutbound(t *testing.T) {
	fx := newFixture(t)
	fx.store.templates = []*store.FunnelTemplate{
		{ID: 1, Stage: store.StageAttraction, Position: 1, Content: "follow"},
	}
	lead := fx.addLead(4, store.StageAttraction)
	lead.EnteredStageTs = fx.now.Add(-10 * 24 * time.Hour).Unix()
	fx.store.interactions = append(fx.store.interactions, &store.Interaction{
		LeadID:    4,
		Direction: store.DirectionOutbound,
		Type:      store.InteractionMessage,
		CreatedTs: fx.now.Add(-24 * time.Hour).Unix(), // within the 3-day wait
	})

	fx.runner.RunFollowUp(context.Background())

	require.Empty(t, fx.pendingMessages())
}

func TestReclassifyPersistsFreshScores(t *testing.T) {
	fx := newFixture(t)
	lead := fx.addLead(1, store.StageUnknown)
	lead.Email = "ana@acme.com"
	lead.Phone = "+5511999999999"
	fx.store.interactions = append(fx.store.interactions,
		&store.Interaction{LeadID: 1, Type: store.InteractionMessage, Direction: store.DirectionInbound, Content: "oi", CreatedTs: fx.now.Add(-time.Hour).Unix()},
		&store.Interaction{LeadID: 1, Type: store.InteractionMessage, Direction: store.DirectionInbound, Content: "vi o anúncio", CreatedTs: fx.now.Add(-time.Hour).Unix()},
	)

	fx.runner.RunReclassify(context.Background())

	got := fx.store.leads[1]
	require.Equal(t, store.StageAttraction, got.Stage)
	require.NotZero(t, got.Score)
	require.NotNil(t, got.LastClassifiedTs)
}

func TestReclassifySkipsFreshLeads(t *testing.T) {
	fx := newFixture(t)
	lead := fx.addLead(1, store.StageAttraction)
	recent := fx.now.Add(-time.Hour).Unix()
	lead.LastClassifiedTs = &recent
	lead.Score = 42

	fx.runner.RunReclassify(context.Background())

	require.Equal(t, 42, fx.store.leads[1].Score)
}

func TestNextDaily(t *testing.T) {
	tz := time.UTC
	morning := time.Date(2025, 1, 21, 8, 0, 0, 0, tz)

	next := nextDaily(morning, "09:00", tz)
	require.Equal(t, time.Date(2025, 1, 21, 9, 0, 0, 0, tz), next)

	// At or past the slot rolls to tomorrow.
	next = nextDaily(time.Date(2025, 1, 21, 9, 0, 0, 0, tz), "09:00", tz)
	require.Equal(t, time.Date(2025, 1, 22, 9, 0, 0, 0, tz), next)
}

func TestTickFiresDueJobsOnce(t *testing.T) {
	fx := newFixture(t)
	fired := 0
	fx.runner.jobs = []*job{{
		name:     "probe",
		nextRun:  fx.now,
		schedule: every(time.Hour),
		run:      func(ctx context.Context) { fired++ },
	}}

	fx.runner.tick(context.Background())
	fx.runner.tick(context.Background())
	require.Equal(t, 1, fired)

	fx.now = fx.now.Add(61 * time.Minute)
	fx.runner.tick(context.Background())
	require.Equal(t, 2, fired)
}

func (fx *fixture) pendingMessages() []*store.ScheduledMessage {
	pending := store.MessagePending
	list, _ := fx.store.ListScheduledMessages(context.Background(), &store.FindScheduledMessage{Status: &pending})
	return list
}
