package pubsub

import (
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscriber) interface{} {
	t.Helper()
	select {
	case msg := <-sub.Channel:
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("subscriber %s timed out waiting for message", sub.ID)
		return nil
	}
}

func expectNothing(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case msg := <-sub.Channel:
		t.Errorf("subscriber %s got unexpected message %v", sub.ID, msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribe_AssignsUniqueIDs(t *testing.T) {
	ps := New()

	a := ps.Subscribe(TopicPlaybackState, "", 4)
	b := ps.Subscribe(TopicPlaybackState, "", 4)

	if a.ID == "" || b.ID == "" {
		t.Fatal("subscriber IDs should not be empty")
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct IDs, both were %q", a.ID)
	}
	if cap(a.Channel) != 4 {
		t.Errorf("expected buffer 4, got %d", cap(a.Channel))
	}
	if n := ps.SubscriberCount(TopicPlaybackState); n != 2 {
		t.Errorf("expected 2 subscribers, got %d", n)
	}
	if n := ps.SubscriberCount(Topic("other")); n != 0 {
		t.Errorf("expected 0 subscribers on another topic, got %d", n)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	ps := New()
	sub := ps.Subscribe(TopicPlaybackState, "", 1)
	keep := ps.Subscribe(TopicPlaybackState, "", 1)

	ps.Unsubscribe(sub)
	ps.Unsubscribe(sub) // second call is a no-op

	if _, ok := <-sub.Channel; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if n := ps.SubscriberCount(TopicPlaybackState); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}

	ps.Publish(TopicPlaybackState, "", "still delivered")
	if msg := receive(t, keep); msg != "still delivered" {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestPublish_FilterByEvent(t *testing.T) {
	ps := New()
	all := ps.Subscribe(TopicPlaybackState, "", 4)
	hw := ps.Subscribe(TopicPlaybackState, "hardware_error", 4)

	ps.Publish(TopicPlaybackState, "state_changed", "changed")
	ps.Publish(TopicPlaybackState, "hardware_error", "broken")

	if msg := receive(t, all); msg != "changed" {
		t.Errorf("expected 'changed', got %v", msg)
	}
	if msg := receive(t, all); msg != "broken" {
		t.Errorf("expected 'broken', got %v", msg)
	}
	if msg := receive(t, hw); msg != "broken" {
		t.Errorf("expected 'broken', got %v", msg)
	}
	expectNothing(t, hw)

	ps.PublishAll(TopicPlaybackState, "everyone")
	if msg := receive(t, hw); msg != "everyone" {
		t.Errorf("expected 'everyone', got %v", msg)
	}
}

func TestPublish_FullChannelDoesNotBlock(t *testing.T) {
	ps := New()
	sub := ps.Subscribe(TopicPlaybackState, "", 1)

	done := make(chan struct{})
	go func() {
		ps.Publish(TopicPlaybackState, "", 1)
		ps.Publish(TopicPlaybackState, "", 2)
		ps.PublishAll(TopicPlaybackState, 3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked on a full channel")
	}
	if msg := receive(t, sub); msg != 1 {
		t.Errorf("expected first message to win, got %v", msg)
	}
	expectNothing(t, sub)
}

func TestClose(t *testing.T) {
	ps := New()
	sub := ps.Subscribe(TopicPlaybackState, "", 1)

	ps.Close()
	ps.Close()

	if _, ok := <-sub.Channel; ok {
		t.Error("channel should be closed")
	}
	late := ps.Subscribe(TopicPlaybackState, "", 1)
	if _, ok := <-late.Channel; ok {
		t.Error("subscription after Close should be closed")
	}
	ps.Publish(TopicPlaybackState, "", "ignored")
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	ps := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := ps.Subscribe(TopicPlaybackState, "", 2)
			time.Sleep(time.Millisecond)
			ps.Unsubscribe(sub)
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ps.Publish(TopicPlaybackState, "", i)
		}(i)
	}
	wg.Wait()

	if n := ps.SubscriberCount(TopicPlaybackState); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}
