package socketio

import (
	"reflect"
	"testing"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
)

func TestGetIntFromMap(t *testing.T) {
	tests := []struct {
		name       string
		m          map[string]interface{}
		key        string
		defaultVal int
		expected   int
	}{
		{"nil map", nil, "test", -1, -1},
		{"missing key", map[string]interface{}{"other": 5}, "test", -1, -1},
		{"int value", map[string]interface{}{"test": 42}, "test", -1, 42},
		{"float64 value", map[string]interface{}{"test": float64(42)}, "test", -1, 42},
		{"int64 value", map[string]interface{}{"test": int64(42)}, "test", -1, 42},
		{"string value returns default", map[string]interface{}{"test": "42"}, "test", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getIntFromMap(tt.m, tt.key, tt.defaultVal); got != tt.expected {
				t.Errorf("getIntFromMap() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestGetIDsFromMap(t *testing.T) {
	m := map[string]interface{}{
		"ids":   []interface{}{float64(3), 1, int64(7), "x"},
		"wrong": "1,2",
	}
	if got := getIDsFromMap(m, "ids"); !reflect.DeepEqual(got, []int64{3, 1, 7}) {
		t.Errorf("getIDsFromMap() = %v", got)
	}
	if got := getIDsFromMap(m, "wrong"); got != nil {
		t.Errorf("non-list value should give nil, got %v", got)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    catalog.Filter
		wantErr bool
	}{
		{
			name: "empty kind means all",
			raw:  map[string]interface{}{},
			want: catalog.Filter{Kind: catalog.FilterAll},
		},
		{
			name: "album with value",
			raw:  map[string]interface{}{"kind": "album", "value": "Kind of Blue"},
			want: catalog.Filter{Kind: catalog.FilterAlbum, Value: "Kind of Blue"},
		},
		{
			name: "recents with limit",
			raw:  map[string]interface{}{"kind": "recents", "limit": float64(10)},
			want: catalog.Filter{Kind: catalog.FilterRecents, Limit: 10},
		},
		{
			name: "playlist ids",
			raw:  map[string]interface{}{"kind": "playlist", "trackIds": []interface{}{float64(2), float64(1)}},
			want: catalog.Filter{Kind: catalog.FilterPlaylist, TrackIDs: []int64{2, 1}},
		},
		{name: "unknown kind", raw: map[string]interface{}{"kind": "genre"}, wantErr: true},
		{name: "not an object", raw: "album", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilter(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseFilter() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPayloadMap(t *testing.T) {
	if got := payloadMap(nil); len(got) != 0 {
		t.Errorf("no args should give empty map, got %v", got)
	}
	if got := payloadMap([]any{nil}); len(got) != 0 {
		t.Errorf("nil arg should give empty map, got %v", got)
	}
	obj := map[string]interface{}{"index": float64(2)}
	if got := payloadMap([]any{obj}); !reflect.DeepEqual(got, obj) {
		t.Errorf("object arg should pass through, got %v", got)
	}
	if got := payloadMap([]any{true}); got["value"] != true {
		t.Errorf("bare value should be wrapped, got %v", got)
	}
}
