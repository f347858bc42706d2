// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"time"

	"github.com/backtor/backtor/lib/codec"
	"github.com/backtor/backtor/lib/onionaddr"
	"github.com/backtor/backtor/onion"
)

// Action names understood by a server with [RegisterRegistryActions].
const (
	// ActionList returns a []ServiceInfo for every registered service.
	ActionList = "list"

	// ActionStop cancels the service named by the "address" field and
	// returns a StopResult.
	ActionStop = "stop"
)

// ServiceInfo describes one registered service.
type ServiceInfo struct {
	Address  string    `json:"address"`
	Onion    string    `json:"onion"`
	Nickname string    `json:"nickname,omitempty"`
	Mode     string    `json:"mode"`
	Ports    []uint16  `json:"ports"`
	Started  time.Time `json:"started"`
}

// StopResult is the response to a stop action.
type StopResult struct {
	Address string `json:"address"`
}

type stopRequest struct {
	Address string `cbor:"address"`
}

// RegisterRegistryActions registers the list and stop actions on
// server, backed by registry.
func RegisterRegistryActions(server *Server, registry *onion.Registry) {
	server.Handle(ActionList, func(context.Context, []byte) (any, error) {
		entries := registry.List()
		services := make([]ServiceInfo, 0, len(entries))
		for _, entry := range entries {
			services = append(services, ServiceInfo{
				Address:  entry.Address,
				Onion:    onionaddr.WithSuffix(entry.Address),
				Nickname: entry.Nickname,
				Mode:     entry.Mode.String(),
				Ports:    entry.Ports,
				Started:  entry.Started,
			})
		}
		return services, nil
	})

	server.Handle(ActionStop, func(_ context.Context, raw []byte) (any, error) {
		var request stopRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid stop request: %w", err)
		}
		if request.Address == "" {
			return nil, fmt.Errorf("missing required field: address")
		}
		address := onionaddr.TrimSuffix(request.Address)
		if _, err := onionaddr.Decode(address); err != nil {
			return nil, err
		}
		if !registry.Cancel(address) {
			return nil, fmt.Errorf("no service registered at %s", onionaddr.WithSuffix(address))
		}
		return StopResult{Address: address}, nil
	})
}
