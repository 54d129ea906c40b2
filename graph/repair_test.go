package graph

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid object",
			input: `{"entities": []}`,
			want:  `{"entities": []}`,
		},
		{
			name:  "code fence",
			input: "```json\n{\"entities\": []}\n```",
			want:  `{"entities": []}`,
		},
		{
			name:  "surrounding prose",
			input: `以下是结果：{"entities": []} 希望有帮助`,
			want:  `{"entities": []}`,
		},
		{
			name:  "single quotes bare keys trailing commas",
			input: `{entities: [{'entity': '甘草', 'type': '药用植物'},],}`,
			want:  `{"entities": [{"entity": "甘草", "type": "药用植物"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Repair(tt.input)
			if err != nil {
				t.Fatalf("Repair(%q) error: %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("Repair(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if !json.Valid(got) {
				t.Errorf("Repair(%q) produced invalid JSON", tt.input)
			}
		})
	}
}

func TestRepairFailures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrEmptyResponse},
		{"whitespace", "  \n\t", ErrEmptyResponse},
		{"no object", "抱歉，我无法完成这个任务。", ErrUnparseable},
		{"unbalanced", `{"entities": [}`, ErrUnparseable},
		{"array only", `[1, 2, 3]`, ErrUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Repair(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Repair(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
