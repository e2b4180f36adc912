package notify

import (
	"testing"
	"time"
)

func TestMultiplexer(t *testing.T) {
	s, m := NewMultiplexerSender[int]("test")
	if _, ok := m.Current(); ok {
		t.Fatalf("current before any send")
	}
	a := make(chan int, 1)
	b := make(chan int, 1)
	m.Subscribe("a", a)
	m.Subscribe("b", b)
	s.Send(1)
	for _, ch := range []chan int{a, b} {
		select {
		case got := <-ch:
			if got != 1 {
				t.Fatalf("got %d", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("nothing received")
		}
	}
	if cur, ok := m.Current(); !ok || cur != 1 {
		t.Fatalf("Current: %d %t", cur, ok)
	}

	m.Unsubscribe(a)
	s.Send(2)
	select {
	case got := <-b:
		if got != 2 {
			t.Fatalf("got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("nothing received")
	}
	select {
	case got := <-a:
		t.Fatalf("unsubscribed channel received %d", got)
	case <-time.After(2 * multiplexerTimeout):
	}
}

func TestMultiplexerSlowSubscriber(t *testing.T) {
	s, m := NewMultiplexerSender[int]("test")
	slow := make(chan int)
	fast := make(chan int, 1)
	m.Subscribe("slow", slow)
	m.Subscribe("fast", fast)
	s.Send(1)
	select {
	case <-fast:
	case <-time.After(5 * multiplexerTimeout):
		t.Fatalf("slow subscriber held up delivery")
	}
}
