package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// Logger returns the process-wide sink for structured output. Plain stdout
// with no prefix or flags: every line is a self-contained JSON document.
var Logger = sync.OnceValue(func() *log.Logger {
	return log.New(os.Stdout, "", 0)
})

// LogRequest writes one JSON line describing a finished HTTP request.
func LogRequest(entry map[string]any) {
	line, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"request log entry not serializable"}`)
		return
	}
	Logger().Println(string(line))
}
