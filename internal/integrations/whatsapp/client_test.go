package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+55 (11) 99999-0000", "+5511999990000"},
		{"11999990000", "+5511999990000"},
		{"5511999990000", "+5511999990000"},
		{"+5511999990000", "+5511999990000"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizePhone_Empty(t *testing.T) {
	_, err := NormalizePhone("abc")
	require.Error(t, err)
}

func TestSend_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/messages/simplified/", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "+5511999990000", body["toPhone"])
		require.Equal(t, "+5500000000000", body["fromPhone"])
		require.Equal(t, "org", body["organizationId"])
		require.Equal(t, "olá", body["message"])

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "+5500000000000", "org")
	require.NoError(t, c.Send(context.Background(), "11 99999-0000", "olá"))
}

func TestSend_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "+55", "org")
	err := c.Send(context.Background(), "11999990000", "olá")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
