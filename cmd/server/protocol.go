// Package main provides a TCP SQL server for MiniDB.
package main

import (
	"github.com/goccy/go-json"
)

// Response represents the server's response to one line.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"` // "query", "commit" or "auth"
	Result  json.RawMessage `json:"result,omitempty"`
}

// QueryResponse contains tabular query results.
type QueryResponse struct {
	Columns     []string   `json:"columns"`
	Data        [][]*string `json:"data"` // NULL cells are null
	RecordsRead int         `json:"records_read"`
	Plan        []string    `json:"plan,omitempty"`
	TimeMs      float64     `json:"time_ms"`
}

// CommitResponse contains mutation results.
type CommitResponse struct {
	TablesCreated  int     `json:"tables_created,omitempty"`
	TablesDeleted  int     `json:"tables_deleted,omitempty"`
	IndexesCreated int     `json:"indexes_created,omitempty"`
	IndexesDeleted int     `json:"indexes_deleted,omitempty"`
	RecordsWritten int     `json:"records_written,omitempty"`
	RecordsUpdated int     `json:"records_updated,omitempty"`
	RecordsDeleted int     `json:"records_deleted,omitempty"`
	Transaction    string  `json:"transaction,omitempty"`
	TimeMs         float64 `json:"time_ms"`
}

// AuthResponse is returned for a successful AUTH command.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity"`
	ExpiresIn     int    `json:"expires_in,omitempty"` // seconds
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func errorResponse(kind string, err error) Response {
	return Response{Success: false, Type: kind, Error: err.Error()}
}

func resultResponse(kind string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(kind, err)
	}
	return Response{Success: true, Type: kind, Result: data}
}
