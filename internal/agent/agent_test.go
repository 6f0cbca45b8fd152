package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/telemetry"
)

func TestTickPublishesTelemetryWithIncreasingSequence(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.tick(ctx)
	}

	tele := pub.byType(bus.TypeTelemetryUpdate)
	if len(tele) != 3 {
		t.Fatalf("expected 3 telemetry messages, got %d", len(tele))
	}
	if tele[0].channel != "aegis:metro-ems:telemetry:amb-001" {
		t.Errorf("unexpected channel %q", tele[0].channel)
	}
	for i, c := range tele {
		if c.msg.Source != "amb-001" || c.msg.Destination != bus.DestinationOrchestrator {
			t.Errorf("message %d has source %q destination %q", i, c.msg.Source, c.msg.Destination)
		}
		var snap telemetry.Snapshot
		if err := c.msg.Decode(&snap); err != nil {
			t.Fatalf("decoding telemetry %d: %v", i, err)
		}
		if snap.SequenceNumber != uint64(i+1) {
			t.Errorf("message %d has sequence %d, expected %d", i, snap.SequenceNumber, i+1)
		}
	}
}

func TestDispatchCommandAccepted(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)

	a.EnqueueCommand("corr-1", dispatchCommand("em-7", 40.76, -73.99))
	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusEnRoute {
		t.Fatalf("expected status en_route, got %s", got)
	}
	if a.vehicle.EmergencyID != "em-7" {
		t.Errorf("expected emergency em-7 assigned, got %q", a.vehicle.EmergencyID)
	}
	if a.vehicle.Destination == nil || a.vehicle.Destination.Lat != 40.76 {
		t.Errorf("destination not set from command parameters: %+v", a.vehicle.Destination)
	}

	ack := findAck(t, pub, "corr-1")
	if ack.Rejected {
		t.Fatalf("expected acceptance, got rejection: %s", ack.Reason)
	}
	if ack.PreviousStatus != telemetry.StatusIdle || ack.NewStatus != telemetry.StatusEnRoute {
		t.Errorf("ack transition %s -> %s, expected idle -> en_route", ack.PreviousStatus, ack.NewStatus)
	}
}

func TestConflictingCommandsResolvedByPrecedence(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)

	a.EnqueueCommand("corr-dispatch", dispatchCommand("em-1", 40.7, -74.0))
	a.EnqueueCommand("corr-stop", bus.CommandPayload{CommandType: bus.CommandEmergencyStop})
	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusOutOfService {
		t.Fatalf("expected emergency_stop to win, status is %s", got)
	}
	loser := findAck(t, pub, "corr-dispatch")
	if !loser.Rejected {
		t.Error("expected losing dispatch command to be rejected")
	}
	winner := findAck(t, pub, "corr-stop")
	if winner.Rejected {
		t.Errorf("expected emergency_stop to be acknowledged, got rejection: %s", winner.Reason)
	}
}

func TestDispatchRejectedWhileUnsafe(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.lastAssessment = rules.Assessment{SafeToOperate: false, CriticalComponents: []string{"engine"}}

	a.EnqueueCommand("corr-2", dispatchCommand("em-9", 40.7, -74.0))
	a.tick(context.Background())

	ack := findAck(t, pub, "corr-2")
	if !ack.Rejected {
		t.Fatal("expected dispatch to be rejected while unsafe")
	}
	if ack.NewStatus != telemetry.StatusIdle {
		t.Errorf("rejection must leave status unchanged, got %s", ack.NewStatus)
	}
}

func TestEmergencyStopAlwaysAccepted(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusMaintenance

	a.EnqueueCommand("corr-3", bus.CommandPayload{CommandType: bus.CommandEmergencyStop})
	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusOutOfService {
		t.Fatalf("expected out_of_service, got %s", got)
	}
	if findAck(t, pub, "corr-3").Rejected {
		t.Error("emergency_stop must never be rejected")
	}
}

func TestStandbyRejectedWhenOutOfService(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusOutOfService

	a.EnqueueCommand("corr-4", bus.CommandPayload{CommandType: bus.CommandStandby})
	a.tick(context.Background())

	ack := findAck(t, pub, "corr-4")
	if !ack.Rejected {
		t.Fatal("expected standby to be rejected while out of service")
	}
	if got := a.Status(); got != telemetry.StatusOutOfService {
		t.Errorf("status must be unchanged, got %s", got)
	}
}

func TestUpdateConfigKeepsStatus(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)

	a.EnqueueCommand("corr-5", bus.CommandPayload{
		CommandType: bus.CommandUpdateConfig,
		Parameters:  map[string]any{"ambient_temp_celsius": 35.0},
	})
	a.tick(context.Background())

	if a.gen.AmbientTemp != 35.0 {
		t.Errorf("expected ambient temp 35, got %.1f", a.gen.AmbientTemp)
	}
	ack := findAck(t, pub, "corr-5")
	if ack.Rejected {
		t.Fatalf("expected acceptance, got rejection: %s", ack.Reason)
	}
	if ack.PreviousStatus != ack.NewStatus {
		t.Errorf("update_config must not change status: %s -> %s", ack.PreviousStatus, ack.NewStatus)
	}
}

func TestLimpModeOnEngineHardLimit(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusEnRoute
	a.vehicle.EmergencyID = "em-3"
	a.vehicle.Sensors.EngineTemp = 149
	a.vehicle.Sensors.CoolantTemp = 140

	a.tick(context.Background())

	if a.vehicle.SpeedCapKMH != limpSpeedCapKMH || a.vehicle.RPMCap != limpRPMCap {
		t.Fatalf("expected limp caps %v/%v, got %v/%v",
			limpSpeedCapKMH, limpRPMCap, a.vehicle.SpeedCapKMH, a.vehicle.RPMCap)
	}
	if got := a.Status(); got != telemetry.StatusReturning {
		t.Errorf("expected returning, got %s", got)
	}
	if a.vehicle.EmergencyID != "" {
		t.Error("limp mode must abandon the assigned emergency")
	}

	dec := decodeDecision(t, pub, "limp_mode")
	if dec.ActionTaken == "" || dec.TelemetrySnapshot["engine_temp_celsius"] < 130 {
		t.Errorf("decision payload incomplete: %+v", dec)
	}

	// The published snapshot must carry the post-decision status.
	tele := pub.byType(bus.TypeTelemetryUpdate)
	var snap telemetry.Snapshot
	if err := tele[len(tele)-1].msg.Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Status != telemetry.StatusReturning {
		t.Errorf("published snapshot has status %s, expected returning", snap.Status)
	}
}

func TestLimpModeFiresOnce(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusEnRoute
	a.vehicle.Sensors.EngineTemp = 149
	a.vehicle.Sensors.CoolantTemp = 140
	// Keep the vehicle far from home so the return never completes.
	a.vehicle.Position.Lat += 1

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a.tick(ctx)
	}

	var count int
	for _, c := range pub.byType(bus.TypeLocalDecision) {
		var d bus.LocalDecisionPayload
		if err := c.msg.Decode(&d); err != nil {
			t.Fatal(err)
		}
		if d.DecisionType == "limp_mode" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one limp_mode decision, got %d", count)
	}
}

func TestUnsafeVehicleRemovedFromServiceWhileIdle(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Sensors.BatteryVoltage = 10.0
	a.vehicle.Sensors.StateOfCharge = 5
	a.vehicle.Sensors.Alternator = 0

	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusOutOfService {
		t.Fatalf("expected out_of_service, got %s", got)
	}
	dec := decodeDecision(t, pub, "removed_from_service")
	if !dec.RequiresOrchestratorOverride {
		t.Error("grounding decision must require orchestrator override")
	}
}

func TestLowFuelTriggersReturn(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Sensors.FuelLiters = 1.2
	a.vehicle.Sensors.FuelPercent = 3
	a.vehicle.Position.Lat += 0.02 // ~2 km from the station

	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusReturning {
		t.Fatalf("expected returning, got %s", got)
	}
	dec := decodeDecision(t, pub, "low_fuel_return")
	if dec.TelemetrySnapshot["fuel_level_percent"] > 5 {
		t.Errorf("decision snapshot fuel %.1f, expected under 5", dec.TelemetrySnapshot["fuel_level_percent"])
	}
}

func TestLowFuelDoesNotAbandonEmergency(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusEnRoute
	a.vehicle.EmergencyID = "em-2"
	dest := telemetry.Position{Lat: a.vehicle.Position.Lat + 0.1, Lon: a.vehicle.Position.Lon}
	a.vehicle.Destination = &dest
	a.vehicle.Sensors.FuelLiters = 1.2
	a.vehicle.Sensors.FuelPercent = 3

	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusEnRoute {
		t.Fatalf("vehicle on an emergency must keep going, got %s", got)
	}
}

func TestArrivalOnScene(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusEnRoute
	dest := a.vehicle.Position
	a.vehicle.Destination = &dest

	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusOnScene {
		t.Fatalf("expected on_scene, got %s", got)
	}
	ev := findStatusChange(t, pub, telemetry.StatusOnScene)
	if ev.Reason != "arrived on scene" {
		t.Errorf("unexpected reason %q", ev.Reason)
	}
}

func TestReturnUnderLimpCapsEntersMaintenance(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusReturning
	a.vehicle.SpeedCapKMH = limpSpeedCapKMH
	a.vehicle.RPMCap = limpRPMCap

	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusMaintenance {
		t.Fatalf("expected maintenance after limping home, got %s", got)
	}
}

func TestMaintenanceCommandClearsLimpCaps(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusReturning
	a.vehicle.SpeedCapKMH = limpSpeedCapKMH
	a.vehicle.RPMCap = limpRPMCap

	a.EnqueueCommand("corr-6", bus.CommandPayload{CommandType: bus.CommandMaintenanceMode})
	a.tick(context.Background())

	if a.vehicle.SpeedCapKMH != 0 || a.vehicle.RPMCap != 0 {
		t.Errorf("maintenance_mode must clear caps, got %v/%v",
			a.vehicle.SpeedCapKMH, a.vehicle.RPMCap)
	}
}

func TestEmergencyResolvedReleasesVehicle(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusOnScene
	a.vehicle.EmergencyID = "em-5"
	a.vehicle.Position.Lat += 0.02

	a.emergencyResolved("em-5")
	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusReturning {
		t.Fatalf("expected returning after resolution, got %s", got)
	}
	if a.vehicle.EmergencyID != "" {
		t.Errorf("emergency assignment not cleared: %q", a.vehicle.EmergencyID)
	}
}

func TestEmergencyResolvedIgnoresOtherIncidents(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.vehicle.Status = telemetry.StatusOnScene
	a.vehicle.EmergencyID = "em-5"

	a.emergencyResolved("em-6")
	a.tick(context.Background())

	if got := a.Status(); got != telemetry.StatusOnScene {
		t.Fatalf("unrelated resolution must not move the vehicle, got %s", got)
	}
}

func TestPublishRetriesTransientFailure(t *testing.T) {
	pub := &capturePublisher{failures: 2}
	a := testAgent(pub)

	a.tick(context.Background())

	if a.Published() != 1 {
		t.Errorf("expected 1 published message after retries, got %d", a.Published())
	}
	if a.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", a.Dropped())
	}
}

func TestPublishDropsAfterBoundedRetries(t *testing.T) {
	pub := &capturePublisher{failures: -1}
	a := testAgent(pub)
	ctx := context.Background()

	a.tick(ctx)
	a.tick(ctx)

	if a.Dropped() != 2 {
		t.Errorf("expected 2 dropped messages, got %d", a.Dropped())
	}
	if pub.calls != 2*publishAttempts {
		t.Errorf("expected %d publish attempts, got %d", 2*publishAttempts, pub.calls)
	}
	// The twin keeps ticking regardless of the broker.
	if a.vehicle.Seq != 2 {
		t.Errorf("expected sequence 2, got %d", a.vehicle.Seq)
	}
}

func TestHeartbeatCadence(t *testing.T) {
	pub := &capturePublisher{}
	a := testAgent(pub)
	a.cfg.HeartbeatEvery = 2
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		a.tick(ctx)
	}

	beats := pub.byType(bus.TypeHeartbeat)
	if len(beats) != 2 {
		t.Fatalf("expected 2 heartbeats over 4 ticks, got %d", len(beats))
	}
	var hb bus.HeartbeatPayload
	if err := beats[1].msg.Decode(&hb); err != nil {
		t.Fatal(err)
	}
	if hb.AgentVersion != Version {
		t.Errorf("heartbeat carries version %q, expected %q", hb.AgentVersion, Version)
	}
	if hb.LastTelemetrySequence != 4 {
		t.Errorf("heartbeat sequence %d, expected 4", hb.LastTelemetrySequence)
	}
	if !hb.SystemHealth.BrokerConnected {
		t.Error("broker should be reported connected")
	}
}

func TestCommandsArriveOverBus(t *testing.T) {
	inp := bus.NewInProc()
	defer inp.Close()
	a := testAgent(inp)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.listen(ctx, inp); err != nil {
		t.Fatal(err)
	}
	statusCh, err := inp.Subscribe(ctx, bus.Pattern(bus.ComponentStatus))
	if err != nil {
		t.Fatal(err)
	}

	msg, err := bus.NewMessage(bus.TypeCommand, "orchestrator", "amb-001",
		bus.PriorityHigh, dispatchCommand("em-8", 40.75, -73.98))
	if err != nil {
		t.Fatal(err)
	}
	ch := bus.ChannelName("metro-ems", bus.ComponentCommands, "amb-001")
	if err := inp.Publish(ctx, ch, msg); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.pending) == 1
	})

	a.tick(ctx)
	if got := a.Status(); got != telemetry.StatusEnRoute {
		t.Fatalf("expected en_route after bus command, got %s", got)
	}

	// The command carried no correlation id, so the ack must echo the
	// command's message id instead.
	for {
		select {
		case in := <-statusCh:
			if in.Message.CorrelationID == msg.MessageID {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no acknowledgment echoing the command message id")
		}
	}
}

func TestExpiredCommandDropped(t *testing.T) {
	inp := bus.NewInProc()
	defer inp.Close()
	a := testAgent(inp)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.listen(ctx, inp); err != nil {
		t.Fatal(err)
	}

	msg, err := bus.NewMessage(bus.TypeCommand, "orchestrator", "amb-001",
		bus.PriorityHigh, bus.CommandPayload{CommandType: bus.CommandReturnToBase})
	if err != nil {
		t.Fatal(err)
	}
	msg.Timestamp = time.Now().UTC().Add(-2 * time.Minute)
	ch := bus.ChannelName("metro-ems", bus.ComponentCommands, "amb-001")
	if err := inp.Publish(ctx, ch, msg); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	a.mu.Lock()
	staged := len(a.pending)
	a.mu.Unlock()
	if staged != 0 {
		t.Fatalf("expected expired command to be dropped, found %d staged", staged)
	}
}

// helpers

func testAgent(pub bus.Publisher) *Agent {
	id := telemetry.VehicleIdentity{
		VehicleID:  "amb-001",
		Type:       telemetry.TypeAmbulance,
		UnitNumber: "A-1",
		FleetID:    "metro-ems",
		StationID:  "station-3",
	}
	v := telemetry.NewVehicle(id, telemetry.Position{Lat: 40.7128, Lon: -74.0060})
	gen := telemetry.NewGenerator("metro-ems", 22, 42)
	a := New(v, gen, pub, Config{TickInterval: time.Second})
	a.started = time.Now()
	return a
}

func dispatchCommand(emergencyID string, lat, lon float64) bus.CommandPayload {
	return bus.CommandPayload{
		CommandType: bus.CommandDispatch,
		Parameters: map[string]any{
			"emergency_id": emergencyID,
			"destination":  map[string]any{"latitude": lat, "longitude": lon},
		},
		Reason:   "incident assignment",
		IssuedBy: "dispatcher-1",
	}
}

type captured struct {
	channel string
	msg     bus.Message
}

// capturePublisher records published messages. failures > 0 fails that
// many Publish calls before succeeding; -1 fails every call.
type capturePublisher struct {
	mu       sync.Mutex
	msgs     []captured
	failures int
	calls    int
}

func (p *capturePublisher) Publish(_ context.Context, channel string, msg bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures < 0 {
		return errors.New("broker unreachable")
	}
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unreachable")
	}
	p.msgs = append(p.msgs, captured{channel: channel, msg: msg})
	return nil
}

func (p *capturePublisher) byType(mt bus.MessageType) []captured {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []captured
	for _, c := range p.msgs {
		if c.msg.MessageType == mt {
			out = append(out, c)
		}
	}
	return out
}

func findAck(t *testing.T, pub *capturePublisher, correlationID string) bus.StatusChangePayload {
	t.Helper()
	for _, c := range pub.byType(bus.TypeStatusChange) {
		if c.msg.CorrelationID != correlationID {
			continue
		}
		var p bus.StatusChangePayload
		if err := c.msg.Decode(&p); err != nil {
			t.Fatalf("decoding ack: %v", err)
		}
		return p
	}
	t.Fatalf("no acknowledgment with correlation id %q", correlationID)
	return bus.StatusChangePayload{}
}

func findStatusChange(t *testing.T, pub *capturePublisher, status telemetry.OperationalStatus) bus.StatusChangePayload {
	t.Helper()
	for _, c := range pub.byType(bus.TypeStatusChange) {
		var p bus.StatusChangePayload
		if err := c.msg.Decode(&p); err != nil {
			t.Fatalf("decoding status change: %v", err)
		}
		if p.NewStatus == status {
			return p
		}
	}
	t.Fatalf("no status change to %s published", status)
	return bus.StatusChangePayload{}
}

func decodeDecision(t *testing.T, pub *capturePublisher, decisionType string) bus.LocalDecisionPayload {
	t.Helper()
	for _, c := range pub.byType(bus.TypeLocalDecision) {
		var d bus.LocalDecisionPayload
		if err := c.msg.Decode(&d); err != nil {
			t.Fatalf("decoding decision: %v", err)
		}
		if d.DecisionType == decisionType {
			return d
		}
	}
	t.Fatalf("no %s decision published", decisionType)
	return bus.LocalDecisionPayload{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}
