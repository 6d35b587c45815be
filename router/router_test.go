package router

import (
	"encoding/binary"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"wdbg/conn"
	"wdbg/message"
	"wdbg/packet"
	"wdbg/wire"
)

// loopback spins up a TCP listener and returns a connected client conn.Conn
// plus the raw server-side net.Conn to write/read test fixtures with.
func loopback(t *testing.T) (*conn.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	serverCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		serverCh <- c
	}()

	addr := ln.Addr().(*net.TCPAddr)
	client, err := conn.Connect(addr.IP, addr.Port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.SetReadTimeout(2 * time.Second); err != nil {
		t.Fatalf("set read timeout: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	server := <-serverCh
	t.Cleanup(func() { server.Close() })
	return client, server
}

func TestDispatchFIFOOrdersWaitersForSameIdentifier(t *testing.T) {
	client, server := loopback(t)

	r := New(nil)
	chA, err := r.RegisterWaiter(message.ExecuteCommandResponseIdentifier)
	if err != nil {
		t.Fatalf("register waiter A: %v", err)
	}
	chB, err := r.RegisterWaiter(message.ExecuteCommandResponseIdentifier)
	if err != nil {
		t.Fatalf("register waiter B: %v", err)
	}

	cancel := &atomic.Bool{}
	loopErr := make(chan error, 1)
	go func() { loopErr <- r.EventLoop(client, 5*time.Millisecond, cancel) }()

	respA := message.AssembleExecuteCommandResponse(message.ExecuteCommandResult{LogOutput: []string{"first"}})
	respB := message.AssembleExecuteCommandResponse(message.ExecuteCommandResult{LogOutput: []string{"second"}})
	if err := respA.Encode(server); err != nil {
		t.Fatalf("encode respA: %v", err)
	}
	if err := respB.Encode(server); err != nil {
		t.Fatalf("encode respB: %v", err)
	}

	var gotA, gotB *packet.Packet
	select {
	case gotA = <-chA:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting on waiter A")
	}
	select {
	case gotB = <-chB:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting on waiter B")
	}

	resultA, err := message.DisassembleExecuteCommandResponse(gotA)
	if err != nil {
		t.Fatalf("disassemble A: %v", err)
	}
	resultB, err := message.DisassembleExecuteCommandResponse(gotB)
	if err != nil {
		t.Fatalf("disassemble B: %v", err)
	}
	if resultA.LogOutput[0] != "first" {
		t.Errorf("waiter A got %v, want the first reply", resultA.LogOutput)
	}
	if resultB.LogOutput[0] != "second" {
		t.Errorf("waiter B got %v, want the second reply", resultB.LogOutput)
	}

	cancel.Store(true)
	select {
	case err := <-loopErr:
		if err != ErrStopped {
			t.Errorf("EventLoop returned %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not stop after cancel")
	}
}

func TestDispatchRoutesNotificationToSubscriber(t *testing.T) {
	client, server := loopback(t)

	r := New(nil)
	got := make(chan message.ReloadProgress, 1)
	if err := r.RegisterNotification(message.ScriptsReloadProgressIdentifier, func(p *packet.Packet) {
		progress, err := message.DisassembleReloadProgress(p)
		if err != nil {
			t.Errorf("disassemble notification: %v", err)
			return
		}
		got <- progress
	}); err != nil {
		t.Fatalf("register notification: %v", err)
	}

	cancel := &atomic.Bool{}
	go r.EventLoop(client, 5*time.Millisecond, cancel)
	defer cancel.Store(true)

	notif := packet.New().
		Append(wire.StringUTF8(string(message.NamespaceScriptCompiler))).
		Append(wire.StringUTF8("log")).
		Append(wire.StringUTF16("compiling"))
	if err := notif.Encode(server); err != nil {
		t.Fatalf("encode notification: %v", err)
	}

	select {
	case progress := <-got:
		if progress.Message != "compiling" {
			t.Errorf("progress.Message = %q, want %q", progress.Message, "compiling")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification dispatch")
	}
}

func TestMalformedPacketIsDroppedNotFatal(t *testing.T) {
	client, server := loopback(t)

	r := New(nil)
	ch, err := r.RegisterWaiter(message.ExecuteCommandResponseIdentifier)
	if err != nil {
		t.Fatalf("register waiter: %v", err)
	}

	cancel := &atomic.Bool{}
	loopErr := make(chan error, 1)
	go func() { loopErr <- r.EventLoop(client, 5*time.Millisecond, cancel) }()

	// A StringUTF8 value whose nested length field isn't tagged as an int16
	// at all — decodeInt16Raw rejects the mismatched tag immediately, before
	// reading any further bytes, so the stream resynchronizes cleanly right
	// after these 8 bytes.
	malformed := append([]byte{}, packet.Head[:]...)
	var sizeBuf [2]byte
	binary.BigEndian.PutUint16(sizeBuf[:], uint16(packet.MinEncodedSize+4))
	malformed = append(malformed, sizeBuf[:]...)
	malformed = append(malformed, 0xAC, 0x08) // StringUTF8 tag
	malformed = append(malformed, 0xFF, 0xFF) // bogus inner length tag
	if _, err := server.Write(malformed); err != nil {
		t.Fatalf("write malformed packet: %v", err)
	}

	good := message.AssembleExecuteCommandResponse(message.ExecuteCommandResult{LogOutput: []string{"ok"}})
	if err := good.Encode(server); err != nil {
		t.Fatalf("encode good packet: %v", err)
	}

	select {
	case got, ok := <-ch:
		if !ok {
			t.Fatal("waiter channel closed, want the event loop to have survived the malformed packet")
		}
		result, err := message.DisassembleExecuteCommandResponse(got)
		if err != nil {
			t.Fatalf("disassemble: %v", err)
		}
		if result.LogOutput[0] != "ok" {
			t.Errorf("LogOutput = %v, want [ok]", result.LogOutput)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reply after a malformed packet")
	}

	cancel.Store(true)
	select {
	case err := <-loopErr:
		if err != ErrStopped {
			t.Errorf("EventLoop returned %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not stop after cancel")
	}
}

func TestFailAllWaitersUnblocksPendingRequestsOnConnectionError(t *testing.T) {
	client, server := loopback(t)

	r := New(nil)
	ch, err := r.RegisterWaiter(message.ExecuteCommandResponseIdentifier)
	if err != nil {
		t.Fatalf("register waiter: %v", err)
	}

	cancel := &atomic.Bool{}
	loopErr := make(chan error, 1)
	go func() { loopErr <- r.EventLoop(client, 5*time.Millisecond, cancel) }()

	server.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected waiter channel to be closed, got a value")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter channel was never closed after connection failure")
	}

	select {
	case <-loopErr:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop never returned after connection failure")
	}
}
