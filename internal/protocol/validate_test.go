package protocol

import "testing"

func TestDecodeInvalidFrame(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if err != ErrInvalidFrame {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestDecodeInvalidType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	var typeErr *InvalidTypeError
	if err == nil {
		t.Fatalf("expected error")
	}
	if e, ok := err.(*InvalidTypeError); !ok {
		t.Fatalf("expected *InvalidTypeError, got %T", err)
	} else {
		typeErr = e
	}
	if typeErr.Type != "bogus" {
		t.Fatalf("expected type %q, got %q", "bogus", typeErr.Type)
	}
}

func TestDecodeRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"type":"register","username":"alice","password":"hunter2hunter","email":"a@x"}`, false},
		{"short username", `{"type":"register","username":"ab","password":"hunter2hunter","email":"a@x"}`, true},
		{"short password", `{"type":"register","username":"alice","password":"short","email":"a@x"}`, true},
		{"missing email", `{"type":"register","username":"alice","password":"hunter2hunter"}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr {
				if _, ok := err.(*ValidationError); !ok {
					t.Fatalf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestDecodePrivateMessageValidation(t *testing.T) {
	_, err := Decode([]byte(`{"type":"private_message","sender_id":1,"receiver_id":2,"content":""}`))
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError for empty content, got %v", err)
	}
}

func TestRequiresAuth(t *testing.T) {
	if RequiresAuth(TypeRegister) {
		t.Errorf("register should not require auth")
	}
	if RequiresAuth(TypeLogin) {
		t.Errorf("login should not require auth")
	}
	if !RequiresAuth(TypePrivateMessage) {
		t.Errorf("private_message should require auth")
	}
}
