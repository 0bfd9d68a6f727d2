package internal

import (
	"bytes"
	"log"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	var buf bytes.Buffer
	underlying := log.New(&buf, "", 0)

	filtered := log.New(&ErrorLogFilter{Unwrap: underlying}, "", 0)

	filtered.Println("http: proxy error: context canceled")
	if buf.Len() != 0 {
		t.Errorf("context canceled message was not suppressed: %q", buf.String())
	}

	filtered.Println("something actually broke")
	if buf.Len() == 0 {
		t.Error("real error message was suppressed")
	}
}
