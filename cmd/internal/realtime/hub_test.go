package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	v1 "sitegate/contracts/realtime/v1"
)

func TestHub_PublishReachesOnlyChannelMembers(t *testing.T) {
	hub := NewHub(nil)

	a := NewClient("conn-a", 4)
	b := NewClient("conn-b", 4)
	hub.Join(a, ChannelForSite("R1"))
	hub.Join(b, ChannelForSite("R2"))

	n, err := hub.PublishBuildStatus(v1.BuildStatusPayload{SiteID: "R1", BuildID: "b-1", State: "success"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("PublishBuildStatus: %v", err)
	}
	if n != 1 {
		t.Fatalf("delivered=%d want=1", n)
	}

	select {
	case env := <-a.Send:
		if env.Type != v1.TypeBuildStatus || env.Channel != "site:R1" {
			t.Fatalf("unexpected envelope: %+v", env)
		}
		if err := env.Validate(); err != nil {
			t.Fatalf("published envelope invalid: %v", err)
		}
		var p v1.BuildStatusPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.BuildID != "b-1" {
			t.Fatalf("payload=%s err=%v", env.Payload, err)
		}
	default:
		t.Fatalf("member did not receive build status")
	}

	select {
	case env := <-b.Send:
		t.Fatalf("non-member received %+v", env)
	default:
	}
}

func TestHub_PublishBuildStatusValidates(t *testing.T) {
	hub := NewHub(nil)
	for _, p := range []v1.BuildStatusPayload{
		{State: "success"},
		{SiteID: "R1"},
	} {
		if _, err := hub.PublishBuildStatus(p, time.Now()); err == nil {
			t.Fatalf("expected error for %+v", p)
		}
	}
}

func TestHub_PublishWithoutMembersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	if n := hub.Publish("site:nobody", v1.Envelope{V: v1.Version, Type: v1.TypeBuildStatus}); n != 0 {
		t.Fatalf("delivered=%d", n)
	}
	if hub.Len() != 0 {
		t.Fatalf("publish must not create channels")
	}
}

func TestHub_LeaveAllDropsEmptyChannels(t *testing.T) {
	hub := NewHub(nil)

	a := NewClient("conn-a", 4)
	b := NewClient("conn-b", 4)
	hub.Join(a, "site:R1")
	hub.Join(a, "site:R2")
	hub.Join(b, "site:R2")

	hub.LeaveAll("conn-a", []ChannelID{"site:R1", "site:R2", "site:unknown"})

	if hub.Len() != 1 {
		t.Fatalf("channels=%d want=1", hub.Len())
	}
	if ch := hub.Channel("site:R2"); ch.Has("conn-a") || !ch.Has("conn-b") {
		t.Fatalf("unexpected membership after LeaveAll")
	}
}

func TestHub_JoinRacingLastLeaveStaysReachable(t *testing.T) {
	const ch ChannelID = "site:R1"

	for i := 0; i < 200; i++ {
		hub := NewHub(nil)
		a := NewClient("conn-a", 4)
		b := NewClient("conn-b", 4)
		hub.Join(a, ch)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			hub.LeaveAll("conn-a", []ChannelID{ch})
		}()
		go func() {
			defer wg.Done()
			<-start
			hub.Join(b, ch)
		}()
		close(start)
		wg.Wait()

		if !hub.Channel(ch).Has("conn-b") {
			t.Fatalf("iteration %d: joined client not tracked by hub (channels=%d)", i, hub.Len())
		}
		if n := hub.Publish(ch, v1.Envelope{V: v1.Version, Type: v1.TypeBuildStatus}); n != 1 {
			t.Fatalf("iteration %d: delivered=%d want=1", i, n)
		}
		<-b.Send
	}
}

func TestHub_ChannelLookupDoesNotCreate(t *testing.T) {
	hub := NewHub(nil)
	if hub.Channel("site:R1") != nil || hub.Len() != 0 {
		t.Fatalf("lookup must not create channels")
	}
}

func TestChannel_BroadcastSkipsFullAndClosedClients(t *testing.T) {
	ch := NewChannel(nil, "site:R1")

	full := NewClient("full", 1)
	full.Send <- v1.Envelope{}
	closed := NewClient("closed", 4)
	closed.Close()
	ok := NewClient("ok", 4)

	ch.Join(full)
	ch.Join(closed)
	ch.Join(ok)

	if n := ch.Broadcast(v1.Envelope{V: v1.Version, Type: v1.TypeBuildStatus}); n != 1 {
		t.Fatalf("delivered=%d want=1", n)
	}
	if len(closed.Send) != 0 {
		t.Fatalf("closed client received an envelope")
	}
}

func TestChannel_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	ch := NewChannel(nil, "site:R1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		c := NewClient(string(rune('a'+i)), 8)
		go func() {
			defer wg.Done()
			ch.Join(c)
			ch.Leave(c.ConnID)
		}()
		go func() {
			defer wg.Done()
			ch.Broadcast(v1.Envelope{V: v1.Version, Type: v1.TypeBuildStatus})
		}()
	}
	wg.Wait()

	if ch.Len() != 0 {
		t.Fatalf("members=%d want=0", ch.Len())
	}
}

func TestBuildEventRelay_HandleMessage(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient("conn-a", 4)
	hub.Join(c, ChannelForSite("R1"))

	r := &BuildEventRelay{
		log: slog.Default(),
		hub: hub,
		now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	delivered := 0
	r.onDelivered = func(n int) { delivered += n }

	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{name: "bad json", payload: "{", want: 0},
		{name: "missing site", payload: `{"build_id":"b","state":"queued"}`, want: 0},
		{name: "other site", payload: `{"site_id":"R9","build_id":"b","state":"queued"}`, want: 0},
		{name: "member site", payload: `{"site_id":"R1","build_id":"b","state":"queued"}`, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.handleMessage(tc.payload); got != tc.want {
				t.Fatalf("delivered=%d want=%d", got, tc.want)
			}
		})
	}

	if delivered != 1 {
		t.Fatalf("delivered hook total=%d want=1", delivered)
	}
	env := <-c.Send
	if !env.TS.Equal(r.now()) {
		t.Fatalf("ts=%v want=%v", env.TS, r.now())
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	t0 := time.Unix(0, 0)

	if !rl.Allow(t0) || !rl.Allow(t0.Add(100*time.Millisecond)) {
		t.Fatalf("first two events must pass")
	}
	if rl.Allow(t0.Add(200 * time.Millisecond)) {
		t.Fatalf("third event within window must be limited")
	}
	if !rl.Allow(t0.Add(1100 * time.Millisecond)) {
		t.Fatalf("event after the first left the window must pass")
	}
}
