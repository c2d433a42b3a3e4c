package v1

import "testing"

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "hello", env: Envelope{V: Version, Type: TypeHello}},
		{name: "build status", env: Envelope{V: Version, Type: TypeBuildStatus, Channel: "site:1"}},
		{name: "missing version", env: Envelope{Type: TypeHello}, wantErr: true},
		{name: "other version", env: Envelope{V: "v2", Type: TypeHello}, wantErr: true},
		{name: "missing type", env: Envelope{V: Version, Type: "  "}, wantErr: true},
		{name: "unknown type", env: Envelope{V: Version, Type: "message.send"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate()=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
