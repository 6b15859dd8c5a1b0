package corenet

import (
	"net"
	"testing"
	"time"

	"github.com/simbtc/simbtc/internal/message"
)

type fakeHandler struct {
	calls []message.ApplicationPayload
	reply *message.ApplicationPayload
	dests []string
}

func (f *fakeHandler) HandleApplicationPayload(payload message.ApplicationPayload, peerAddr string, coreNodes []string, isCore bool) (*message.ApplicationPayload, []string) {
	f.calls = append(f.calls, payload)
	return f.reply, f.dests
}

func TestNewManagerIncludesSelfInCoreSet(t *testing.T) {
	m := NewManager("127.0.0.1:9100", &fakeHandler{})
	nodes := m.CoreNodes()
	if len(nodes) != 1 || nodes[0] != "127.0.0.1:9100" {
		t.Errorf("CoreNodes: got %v, want [127.0.0.1:9100]", nodes)
	}
}

func TestDispatchAddAddsPeerAndBroadcasts(t *testing.T) {
	// The new peer has to be reachable: a failed CoreList send would
	// drop it from the core set again.
	peer, err := net.Listen("tcp", "127.0.0.1:19302")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer peer.Close()

	m := NewManager("127.0.0.1:19301", &fakeHandler{})
	m.dispatch("127.0.0.1:19302", message.NewAdd())

	nodes := m.CoreNodes()
	if len(nodes) != 2 {
		t.Fatalf("CoreNodes after Add: got %v, want 2 entries", nodes)
	}

	conn, err := peer.Accept()
	if err != nil {
		t.Fatalf("new peer did not receive the CoreList broadcast: %v", err)
	}
	conn.Close()
}

func TestDispatchRemoveDropsPeer(t *testing.T) {
	m := NewManager("127.0.0.1:19303", &fakeHandler{})
	m.dispatch("127.0.0.1:19304", message.NewAdd())
	m.dispatch("127.0.0.1:19304", message.NewRemove())

	nodes := m.CoreNodes()
	if len(nodes) != 1 || nodes[0] != "127.0.0.1:19303" {
		t.Errorf("CoreNodes after Remove: got %v, want only self", nodes)
	}
}

func TestDispatchCoreListUnionsNodes(t *testing.T) {
	m := NewManager("127.0.0.1:19305", &fakeHandler{})
	m.dispatch("127.0.0.1:19306", message.NewCoreList([]string{"127.0.0.1:19307", "127.0.0.1:19308"}))

	nodes := m.CoreNodes()
	if len(nodes) != 3 {
		t.Errorf("CoreNodes after CoreList: got %v, want 3 entries (self + 2 gossiped)", nodes)
	}
}

func TestDispatchAddAsEdgeTracksEdgeSeparatelyFromCores(t *testing.T) {
	m := NewManager("127.0.0.1:19309", &fakeHandler{})
	m.dispatch("127.0.0.1:19310", message.NewAddAsEdge())

	if len(m.CoreNodes()) != 1 {
		t.Errorf("AddAsEdge must not add the sender to the core set: got %v", m.CoreNodes())
	}
	m.mu.Lock()
	_, isEdge := m.edges["127.0.0.1:19310"]
	m.mu.Unlock()
	if !isEdge {
		t.Error("AddAsEdge did not record the sender in the edge set")
	}
}

func TestDispatchApplicationForwardsToHandler(t *testing.T) {
	handler := &fakeHandler{}
	m := NewManager("127.0.0.1:19311", handler)

	app := message.NewRequestFullChain()
	m.dispatchApplication("127.0.0.1:19312", app)

	if len(handler.calls) != 1 {
		t.Fatalf("handler calls: got %d, want 1", len(handler.calls))
	}
	if handler.calls[0].Kind != message.AppKindRequestFullChain {
		t.Errorf("forwarded payload kind: got %q", handler.calls[0].Kind)
	}
}

func TestListenAndSendMsgOverRealSockets(t *testing.T) {
	handler := &fakeHandler{}
	receiver := NewManager("127.0.0.1:19320", handler)
	if err := receiver.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer receiver.Shutdown("")

	sender := NewManager("127.0.0.1:19321", &fakeHandler{})
	ok := sender.SendMsg("127.0.0.1:19320", message.New(19321, message.NewPing()))
	if !ok {
		t.Fatal("SendMsg reported failure sending to a listening peer")
	}

	// The accept loop runs in a background goroutine; give it a moment.
	time.Sleep(100 * time.Millisecond)
}

func TestSendMsgToUnreachableAddrRemovesPeer(t *testing.T) {
	m := NewManager("127.0.0.1:19330", &fakeHandler{})
	m.addPeer("127.0.0.1:19399")
	if len(m.CoreNodes()) != 2 {
		t.Fatalf("setup: expected peer to be added, got %v", m.CoreNodes())
	}

	ok := m.SendMsg("127.0.0.1:19399", message.New(19330, message.NewPing()))
	if ok {
		t.Fatal("SendMsg reported success against an address nothing listens on")
	}
	if len(m.CoreNodes()) != 1 {
		t.Errorf("SendMsg failure did not remove the unreachable peer: got %v", m.CoreNodes())
	}
}
