package client

import (
	"testing"
	"time"

	"wdbg/internal/mockserver"
	"wdbg/message"
	"wdbg/packet"
	"wdbg/wdbgerr"
	"wdbg/wire"
)

// isListen reports whether req is one of the Listen ("BIND") notifications
// Start sends for every namespace. Handlers below ignore these so the
// subscription handshake doesn't get mistaken for the request under test.
func isListen(req *packet.Packet) bool {
	return len(req.Payload) >= 1 && req.Payload[0] == wire.StringUTF8("BIND")
}

// startMockGame spins up a mockserver.Server in a goroutine and connects a
// Client to it.
func startMockGame(t *testing.T, handler mockserver.Handler) (*Client, *mockserver.Server) {
	t.Helper()

	srv, err := mockserver.Listen(handler)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() {
		srv.Shutdown()
		srv.Wait()
	})

	addr := srv.Addr()
	c, err := Connect(Options{
		IP:          addr.IP,
		Port:        addr.Port,
		ConnTimeout: time.Second,
		ReadTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.Start(5 * time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { c.Stop() })

	return c, srv
}

func TestScriptsRootPathRequestResponse(t *testing.T) {
	const wantPath = `C:\GOG\Witcher 3\content\content0\scripts`

	c, _ := startMockGame(t, func(req *packet.Packet, send func(*packet.Packet) error) {
		if isListen(req) {
			return
		}
		send(packet.New().
			Append(wire.StringUTF8("ScriptCompiler")).
			Append(wire.StringUTF8("RootPathConfirm")).
			Append(wire.StringUTF16(wantPath)))
	})

	got, err := c.ScriptsRootPath()
	if err != nil {
		t.Fatalf("ScriptsRootPath: %v", err)
	}
	if got != wantPath {
		t.Errorf("ScriptsRootPath() = %q, want %q", got, wantPath)
	}
}

func TestExecuteCommandSuccessWithOutput(t *testing.T) {
	c, _ := startMockGame(t, func(req *packet.Packet, send func(*packet.Packet) error) {
		if isListen(req) {
			return
		}
		send(message.AssembleExecuteCommandResponse(message.ExecuteCommandResult{
			LogOutput: []string{"Hello", "World!"},
		}))
	})

	result, err := c.ExecuteCommand("spawnt(12)")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if result.Failed {
		t.Fatal("result.Failed = true, want false")
	}
	want := []string{"Hello", "World!"}
	if len(result.LogOutput) != len(want) {
		t.Fatalf("LogOutput = %v, want %v", result.LogOutput, want)
	}
	for i := range want {
		if result.LogOutput[i] != want[i] {
			t.Errorf("LogOutput[%d] = %q, want %q", i, result.LogOutput[i], want[i])
		}
	}
}

func TestExecuteCommandSuccessNoOutput(t *testing.T) {
	c, _ := startMockGame(t, func(req *packet.Packet, send func(*packet.Packet) error) {
		if isListen(req) {
			return
		}
		send(message.AssembleExecuteCommandResponse(message.ExecuteCommandResult{}))
	})

	result, err := c.ExecuteCommand("spawnt(12)")
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if result.Failed || result.LogOutput != nil {
		t.Errorf("ExecuteCommand() = %+v, want success with nil LogOutput", result)
	}
}

func TestTwoSequentialExecuteCommandsGetOwnReplies(t *testing.T) {
	replies := []string{"first", "second"}
	var calls int
	c, _ := startMockGame(t, func(req *packet.Packet, send func(*packet.Packet) error) {
		if isListen(req) {
			return
		}
		i := calls
		calls++
		send(message.AssembleExecuteCommandResponse(message.ExecuteCommandResult{
			LogOutput: []string{replies[i]},
		}))
	})

	result1, err := c.ExecuteCommand("cmd1")
	if err != nil {
		t.Fatalf("first ExecuteCommand: %v", err)
	}
	result2, err := c.ExecuteCommand("cmd2")
	if err != nil {
		t.Fatalf("second ExecuteCommand: %v", err)
	}
	if result1.LogOutput[0] != "first" {
		t.Errorf("first result = %v, want reply from first server call", result1.LogOutput)
	}
	if result2.LogOutput[0] != "second" {
		t.Errorf("second result = %v, want reply from second server call", result2.LogOutput)
	}
}

func TestExecuteCommandTimesOutWhenServerNeverReplies(t *testing.T) {
	srv, err := mockserver.Listen(func(req *packet.Packet, send func(*packet.Packet) error) {
		// Never replies to anything, including the Listen handshake.
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() {
		srv.Shutdown()
		srv.Wait()
	})

	addr := srv.Addr()
	c, err := Connect(Options{
		IP:          addr.IP,
		Port:        addr.Port,
		ConnTimeout: time.Second,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.Start(5 * time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { c.Stop() })

	start := time.Now()
	_, err = c.ExecuteCommand("spawnt(12)")
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	if wdbgerr.KindOf(err) != wdbgerr.KindTimeout {
		t.Errorf("KindOf(err) = %v, want KindTimeout", wdbgerr.KindOf(err))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("ExecuteCommand took %s, want it to fail close to the 50ms read timeout", elapsed)
	}
}

func TestReloadScriptsProgressSubscription(t *testing.T) {
	c, _ := startMockGame(t, func(req *packet.Packet, send func(*packet.Packet) error) {
		if isListen(req) {
			return
		}
		send(packet.New().
			Append(wire.StringUTF8("ScriptCompiler")).
			Append(wire.StringUTF8("started")).
			Append(wire.Int8(0)).
			Append(wire.Int8(0)))
		send(packet.New().
			Append(wire.StringUTF8("ScriptCompiler")).
			Append(wire.StringUTF8("log")).
			Append(wire.StringUTF16("Compiling foo.ws")))
		send(packet.New().
			Append(wire.StringUTF8("ScriptCompiler")).
			Append(wire.StringUTF8("warn")).
			Append(wire.UInt32(12)).
			Append(wire.StringUTF16("bar.ws")).
			Append(wire.StringUTF16("Variable declared, but unused")))
		send(packet.New().
			Append(wire.StringUTF8("ScriptCompiler")).
			Append(wire.StringUTF8("finished")).
			Append(wire.Int8(0)))
	})

	events := make(chan message.ReloadProgress, 8)
	if err := c.OnScriptsReloadProgress(func(p message.ReloadProgress) {
		events <- p
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := c.ReloadScripts(); err != nil {
		t.Fatalf("ReloadScripts: %v", err)
	}

	want := []message.ReloadProgressKind{
		message.ReloadProgressStarted,
		message.ReloadProgressLog,
		message.ReloadProgressWarn,
		message.ReloadProgressFinished,
	}
	for i, wantKind := range want {
		select {
		case got := <-events:
			if got.Kind != wantKind {
				t.Errorf("event %d kind = %v, want %v", i, got.Kind, wantKind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
