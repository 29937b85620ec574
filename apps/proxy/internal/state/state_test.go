package state

import "testing"

func TestLifecycleHappyPath(t *testing.T) {
	s := New()
	const id = "aaa"

	if _, ok := s.GetState(id); ok {
		t.Fatal("expected idle identifier to have no state")
	}

	s.BeginVerifyingManifest(id)
	if !s.IsInProgress(id) {
		t.Fatal("expected in-progress after BeginVerifyingManifest")
	}

	pathToTxID := map[string]string{"index.html": "idxTx"}
	s.SetManifestVerified(id, "manifestTx", "index.html", pathToTxID, "idxTx")
	if !s.IsReady(id) {
		t.Fatal("expected ready after SetManifestVerified")
	}
	if !s.IsResourceVerified(id, "idxTx") {
		t.Fatal("expected index resource marked verified")
	}

	s.MarkResourceVerified(id, "assetTx")
	if !s.IsResourceVerified(id, "assetTx") {
		t.Fatal("expected marked resource to be verified")
	}
}

func TestClearRemovesStateAndReturnsTxIDs(t *testing.T) {
	s := New()
	const id = "bbb"
	s.BeginVerifyingManifest(id)
	s.SetManifestVerified(id, "manifestTx", "index.html", map[string]string{"index.html": "idxTx"}, "idxTx")
	s.MarkResourceVerified(id, "assetTx")

	active := id
	s.SetActive(&active)

	txIDs := s.Clear(id)
	if len(txIDs) != 3 { // manifestTx, idxTx, assetTx
		t.Fatalf("expected 3 tx ids to clear, got %d: %v", len(txIDs), txIDs)
	}
	if _, ok := s.GetState(id); ok {
		t.Fatal("expected no state after Clear")
	}
	if s.GetActive() != nil {
		t.Fatal("expected active identifier unset after clearing the active one")
	}
}

func TestActiveIdentifierScoping(t *testing.T) {
	s := New()
	const id = "ccc"

	active := id
	s.SetActive(&active)
	if _, ok := s.TxIDForActivePath("index.html"); ok {
		t.Fatal("expected no interception before manifest verified")
	}

	s.BeginVerifyingManifest(id)
	if _, ok := s.TxIDForActivePath("index.html"); ok {
		t.Fatal("expected no interception while still verifying")
	}

	s.SetManifestVerified(id, "manifestTx", "index.html", map[string]string{"index.html": "idxTx"}, "idxTx")
	txID, ok := s.TxIDForActivePath("index.html")
	if !ok || txID != "idxTx" {
		t.Fatalf("expected interception once ready, got ok=%v txID=%s", ok, txID)
	}
	if _, ok := s.TxIDForActivePath("missing.js"); ok {
		t.Fatal("expected no interception for a path absent from the manifest")
	}
}

func TestBroadcastDeliversToSubscribers(t *testing.T) {
	s := New()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Broadcast(Event{Type: EventVerificationStarted, Identifier: "aaa"})

	select {
	case ev := <-ch:
		if ev.Type != EventVerificationStarted || ev.Identifier != "aaa" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event to be delivered synchronously to buffered channel")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New()
	ch, unsubscribe := s.Subscribe()
	unsubscribe()

	s.Broadcast(Event{Type: EventVerificationStarted, Identifier: "aaa"})

	if _, open := <-ch; open {
		t.Fatal("expected channel closed after unsubscribe")
	}
}
