package response

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRetryLaterRoundsUp(t *testing.T) {
	tests := []struct {
		after time.Duration
		want  string
	}{
		{after: 0, want: "1"},
		{after: 200 * time.Millisecond, want: "1"},
		{after: time.Second, want: "1"},
		{after: 1001 * time.Millisecond, want: "2"},
		{after: time.Minute, want: "60"},
	}
	gin.SetMode(gin.TestMode)
	for _, tc := range tests {
		t.Run(tc.after.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			RetryLater(c, http.StatusConflict, ErrResultPending, tc.after)

			if !c.IsAborted() {
				t.Error("chain not aborted")
			}
			if rec.Code != http.StatusConflict {
				t.Errorf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("Retry-After"); got != tc.want {
				t.Errorf("Retry-After = %q, want %q", got, tc.want)
			}
		})
	}
}
