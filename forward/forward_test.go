// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/backtor/backtor/lib/hskey"
	"github.com/backtor/backtor/lib/testutil"
	"github.com/backtor/backtor/transport"
)

const testTimeout = 5 * time.Second

// echoServer listens on loopback TCP and echoes everything it reads.
func echoServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("echoServer: listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			connection, acceptError := listener.Accept()
			if acceptError != nil {
				return
			}
			go func() {
				defer connection.Close()
				io.Copy(connection, connection)
			}()
		}
	}()
	return listener.Addr().String()
}

// greetingServer writes greeting to every connection and closes it.
func greetingServer(t *testing.T, greeting string) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("greetingServer: listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			connection, acceptError := listener.Accept()
			if acceptError != nil {
				return
			}
			connection.Write([]byte(greeting))
			connection.Close()
		}
	}()
	return listener.Addr().String()
}

// startProxy publishes a memory service and runs proxy on it.
func startProxy(t *testing.T, proxy *Proxy) (*transport.MemoryNetwork, string, context.CancelFunc, <-chan error) {
	t.Helper()

	network := transport.NewMemoryNetwork()
	t.Cleanup(func() { network.Close() })

	seed, err := hskey.Generate()
	if err != nil {
		t.Fatal(err)
	}
	key := hskey.Expand(seed)
	service, err := network.Publish(context.Background(), transport.ServiceConfig{Key: &key, Ports: proxy.Ports()})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- proxy.HandleRequests(ctx, service.Requests()) }()
	return network, service.Address(), cancel, done
}

func TestParseRule(t *testing.T) {
	rule, err := ParseRule("22=127.0.0.1:2222")
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if rule.Port != 22 || rule.Target != "127.0.0.1:2222" {
		t.Errorf("ParseRule = %+v", rule)
	}
	if rule.String() != "22=127.0.0.1:2222" {
		t.Errorf("String() = %q", rule.String())
	}

	ipv6, err := ParseRule(" 80=[::1]:8080 ")
	if err != nil {
		t.Fatalf("ParseRule(ipv6): %v", err)
	}
	if ipv6.Target != "[::1]:8080" {
		t.Errorf("ipv6 target = %q", ipv6.Target)
	}

	for _, invalid := range []string{
		"",
		"22",
		"x=127.0.0.1:22",
		"0=127.0.0.1:22",
		"70000=127.0.0.1:22",
		"22=127.0.0.1",
		"22=:22",
		"22=localhost:0",
		"22=localhost:ssh",
	} {
		if _, err := ParseRule(invalid); err == nil {
			t.Errorf("ParseRule(%q) succeeded, want error", invalid)
		}
	}
}

func TestProxy_RequiresRules(t *testing.T) {
	proxy := &Proxy{}
	if err := proxy.HandleRequests(context.Background(), make(chan transport.Request)); err == nil {
		t.Error("HandleRequests with no rules succeeded")
	}
}

func TestProxy_ForwardsMatchingPort(t *testing.T) {
	t.Parallel()

	proxy := &Proxy{Rules: []Rule{{Port: 8080, Target: echoServer(t)}}}
	network, address, _, _ := startProxy(t, proxy)

	connection, err := network.Dial(context.Background(), address, 8080)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer connection.Close()

	payload := []byte("through the onion")
	if _, err := connection.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	response := make([]byte, len(payload))
	if _, err := io.ReadFull(connection, response); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(response, payload) {
		t.Errorf("response = %q, want %q", response, payload)
	}
}

func TestProxy_RejectsOtherPorts(t *testing.T) {
	t.Parallel()

	proxy := &Proxy{Rules: []Rule{{Port: 8080, Target: echoServer(t)}}}
	network, address, _, _ := startProxy(t, proxy)

	if _, err := network.Dial(context.Background(), address, 9090); !errors.Is(err, transport.ErrRejected) {
		t.Errorf("Dial to unforwarded port error = %v, want ErrRejected", err)
	}

	// The proxy keeps serving after a rejection.
	connection, err := network.Dial(context.Background(), address, 8080)
	if err != nil {
		t.Fatalf("Dial after rejection: %v", err)
	}
	connection.Close()
}

func TestProxy_TargetClosesFirst(t *testing.T) {
	t.Parallel()

	proxy := &Proxy{Rules: []Rule{{Port: 25, Target: greetingServer(t, "220 ready\r\n")}}}
	network, address, _, _ := startProxy(t, proxy)

	connection, err := network.Dial(context.Background(), address, 25)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer connection.Close()

	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(connection)
		received <- data
	}()
	data := testutil.RequireReceive(t, received, testTimeout, "greeting did not arrive")
	if string(data) != "220 ready\r\n" {
		t.Errorf("received %q", data)
	}
}

func TestProxy_UnreachableTarget(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadTarget := listener.Addr().String()
	listener.Close()

	proxy := &Proxy{Rules: []Rule{{Port: 22, Target: deadTarget}}}
	network, address, _, _ := startProxy(t, proxy)

	connection, err := network.Dial(context.Background(), address, 22)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer connection.Close()

	// The stream is accepted, then closed when the target refuses.
	done := make(chan error, 1)
	go func() {
		_, err := connection.Read(make([]byte, 1))
		done <- err
	}()
	if err := testutil.RequireReceive(t, done, testTimeout, "stream was not closed"); err == nil {
		t.Error("read succeeded on a stream whose target is down")
	}
}

func TestProxy_StopsOnCancel(t *testing.T) {
	t.Parallel()

	proxy := &Proxy{Rules: []Rule{{Port: 8080, Target: echoServer(t)}}}
	network, address, cancel, done := startProxy(t, proxy)

	// An open connection survives cancellation of the request loop.
	connection, err := network.Dial(context.Background(), address, 8080)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer connection.Close()

	cancel()
	if err := testutil.RequireReceive(t, done, testTimeout, "HandleRequests did not return"); err != nil {
		t.Errorf("HandleRequests = %v, want nil", err)
	}

	if _, err := connection.Write([]byte("still here")); err != nil {
		t.Fatalf("Write after cancel: %v", err)
	}
	response := make([]byte, len("still here"))
	if _, err := io.ReadFull(connection, response); err != nil {
		t.Fatalf("ReadFull after cancel: %v", err)
	}
}

func TestProxy_RequestStreamEnds(t *testing.T) {
	t.Parallel()

	requests := make(chan transport.Request)
	close(requests)
	proxy := &Proxy{Rules: []Rule{{Port: 1, Target: "127.0.0.1:1"}}}
	if err := proxy.HandleRequests(context.Background(), requests); err != nil {
		t.Errorf("HandleRequests = %v, want nil", err)
	}
}
