package zoho

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	tests := []struct{ in, first, last string }{
		{"John Smith", "John", "Smith"},
		{"Mary Ann  de Souza", "Mary Ann de", "Souza"},
		{"Cher", "", "Cher"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestCreateLead(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		status  int
		wantID  string
		wantErr bool
	}{
		{"created", `{"data":[{"code":"SUCCESS","status":"success","details":{"id":"z1"}}]}`, http.StatusCreated, "z1", false},
		{"already there", `{"data":[{"code":"DUPLICATE_DATA","status":"error","details":{"id":"z0"}}]}`, http.StatusOK, "z0", false},
		{"rejected", `{"data":[{"code":"INVALID_DATA","status":"error","message":"bad email"}]}`, http.StatusOK, "", true},
		{"server error", `{}`, http.StatusInternalServerError, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/Leads", r.URL.Path)
				assert.Equal(t, "Zoho-oauthtoken tok", r.Header.Get("Authorization"))

				var body struct {
					Data []Lead `json:"data"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "a@x.com", body.Data[0].Email)

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			id, err := NewCRMClient(srv.URL, "tok", time.Second).CreateLead(context.Background(), &Lead{Email: "a@x.com", LastName: "Smith"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
