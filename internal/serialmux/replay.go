package serialmux

import "time"

// ReplayPort returns a port that emits one of lines every interval, as the
// headband bridge would. With loop set it repeats until closed; otherwise it
// reads EOF after the last line.
func ReplayPort(lines []string, interval time.Duration, loop bool) *TestableSerialPort {
	port := NewTestableSerialPort()
	if len(lines) == 0 {
		return port
	}
	port.BlockReads = true
	go replay(port, lines, interval, loop)
	return port
}

func replay(port *TestableSerialPort, lines []string, interval time.Duration, loop bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		if i == len(lines) {
			if !loop {
				port.finish()
				return
			}
			i = 0
		}
		<-ticker.C
		if port.isClosed() {
			return
		}
		port.AddReadData([]byte(lines[i] + "\n"))
	}
}
