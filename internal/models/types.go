// Package models holds the JSON-facing shapes served by the HTTP/WebSocket
// fan-out API. They are a deliberately loose bridge over the decode
// pipeline's typed firehose.FirehoseMessage/Operation values: the API
// speaks generic JSON to arbitrary clients, so interface{} payloads and
// plain strings replace the pipeline's discriminated unions here.
package models

import (
	"time"
)

// FilterOptions represents the filter options that can be set via API
type FilterOptions struct {
	Repository string `json:"repository"`
	PathPrefix string `json:"pathPrefix"`
	Keyword    string `json:"keyword"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// FilterUpdateRequest represents the request body for updating filters
type FilterUpdateRequest struct {
	Repository *string `json:"repository,omitempty"`
	PathPrefix *string `json:"pathPrefix,omitempty"`
	Keyword    *string `json:"keyword,omitempty"`
}

// ATEvent represents an AT Protocol event from the firehose
type ATEvent struct {
	Event string        `json:"event"`
	Did   string        `json:"did"`
	Time  string        `json:"time"`
	Kind  string        `json:"kind"`
	Ops   []ATOperation `json:"ops,omitempty"`
}

// ATOperation represents an operation within an AT Protocol event
type ATOperation struct {
	Action     string      `json:"action"`
	Path       string      `json:"path"`
	Collection string      `json:"collection"`
	Rkey       string      `json:"rkey"`
	Record     interface{} `json:"record,omitempty"`
	Cid        string      `json:"cid,omitempty"`
}

// RecordContent represents the content of an AT Protocol record. It's the
// lowest common denominator across the ten known schemas: most carry a
// createdAt and a $type, a subset carry freeform text.
type RecordContent struct {
	Text    string                 `json:"text"`
	Message string                 `json:"message"`
	Content string                 `json:"content"`
	Reply   map[string]interface{} `json:"reply,omitempty"`
	Langs   []string               `json:"langs,omitempty"`
	Type    string                 `json:"$type"`
	Created string                 `json:"createdAt"`
}

// FilterSubscription is the externally-visible view of a subscription.Subscription.
type FilterSubscription struct {
	FilterKey   string        `json:"filterKey"`
	Options     FilterOptions `json:"options"`
	CreatedAt   time.Time     `json:"createdAt"`
	Connections int           `json:"connections"`
}

// EventTimestamps records when an event moved through the fan-out pipeline,
// for clients diagnosing forwarding latency.
type EventTimestamps struct {
	Original  string `json:"original"`
	Received  string `json:"received"`
	Forwarded string `json:"forwarded"`
	FilterKey string `json:"filterKey"`
}

// EnrichedATEvent is an ATEvent with forwarding timestamps attached, the
// shape actually written to WebSocket clients.
type EnrichedATEvent struct {
	Event      string          `json:"event"`
	Did        string          `json:"did"`
	Time       string          `json:"time"`
	Kind       string          `json:"kind"`
	Ops        []ATOperation   `json:"ops,omitempty"`
	Timestamps EventTimestamps `json:"timestamps"`
}

// WSMessage is the envelope for every message written to a subscriber's
// WebSocket connection.
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

