package conn

import (
	"net"
	"testing"
	"time"

	"wdbg/packet"
	"wdbg/wire"
)

func listenLoopback(t *testing.T) (*net.TCPListener, net.IP, int) {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	return ln, addr.IP, addr.Port
}

func TestSendReceiveRoundTrip(t *testing.T) {
	ln, ip, port := listenLoopback(t)
	defer ln.Close()

	serverDone := make(chan *packet.Packet, 1)
	go func() {
		serverConn, err := ln.AcceptTCP()
		if err != nil {
			serverDone <- nil
			return
		}
		s := wrap(serverConn)
		if err := s.SetReadTimeout(time.Second); err != nil {
			serverDone <- nil
			return
		}
		p, err := s.Receive()
		if err != nil {
			serverDone <- nil
			return
		}
		serverDone <- p
	}()

	client, err := ConnectTimeout(ip, port, time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	want := packet.New().Append(wire.StringUTF8("hello"))
	if err := client.Send(want); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := <-serverDone
	if got == nil {
		t.Fatal("server did not receive a packet")
	}
	if len(got.Payload) != 1 {
		t.Fatalf("payload length = %d, want 1", len(got.Payload))
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	ln, ip, port := listenLoopback(t)
	defer ln.Close()

	serverAccepted := make(chan *net.TCPConn, 1)
	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			serverAccepted <- nil
			return
		}
		serverAccepted <- c
	}()

	client, err := ConnectTimeout(ip, port, time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	serverTCP := <-serverAccepted
	if serverTCP == nil {
		t.Fatal("accept failed")
	}
	server := wrap(serverTCP)
	defer server.Close()
	if err := server.SetReadTimeout(time.Second); err != nil {
		t.Fatalf("set read timeout: %v", err)
	}

	p := packet.New().Append(wire.Int32(7))
	if err := client.Send(p); err != nil {
		t.Fatalf("send: %v", err)
	}

	ready, err := server.Peek()
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if !ready {
		t.Fatal("expected peek to report data ready")
	}

	got, err := server.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got.Payload) != 1 {
		t.Fatalf("payload length = %d, want 1", len(got.Payload))
	}
}

func TestPeekTimesOutWithoutData(t *testing.T) {
	ln, ip, port := listenLoopback(t)
	defer ln.Close()

	serverAccepted := make(chan *net.TCPConn, 1)
	go func() {
		c, _ := ln.AcceptTCP()
		serverAccepted <- c
	}()

	client, err := ConnectTimeout(ip, port, time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	serverTCP := <-serverAccepted
	server := wrap(serverTCP)
	defer server.Close()
	if err := server.SetReadTimeout(50 * time.Millisecond); err != nil {
		t.Fatalf("set read timeout: %v", err)
	}

	ready, err := server.Peek()
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if ready {
		t.Fatal("expected peek to report no data")
	}
}
