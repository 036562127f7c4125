package httpclient

import (
	"bufio"
	"io"
	"strings"
)

// maxSSELine 单行事件数据上限
const maxSSELine = 4 << 20

// Event 一个 server-sent event。
type Event struct {
	Name string
	ID   string
	Data string
}

// ReadSSE 逐个解析 text/event-stream，fn 返回 io.EOF 时提前结束且不视为错误。
func ReadSSE(r io.Reader, fn func(Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxSSELine)

	var ev Event
	var data []string
	dispatch := func() error {
		if len(data) == 0 && ev.Name == "" {
			return nil
		}
		ev.Data = strings.Join(data, "\n")
		err := fn(ev)
		ev, data = Event{}, data[:0]
		return err
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if err := dispatch(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
