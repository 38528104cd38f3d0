//go:build linux

package transport

import (
	"time"

	serial "github.com/daedaluz/goserial"
)

// SerialPort is a Port backed by a real UART via github.com/daedaluz/goserial.
type SerialPort struct {
	port *serial.Port
}

// OpenSerial opens path (e.g. "/dev/ttyS1") and configures it 8-N-1 at
// baud, matching the sensor's default framing (§6).
func OpenSerial(path string, baud int) (*SerialPort, error) {
	opts := serial.NewOptions()
	opts.SetReadTimeout(200 * time.Millisecond)

	port, err := serial.Open(path, opts)
	if err != nil {
		return nil, err
	}

	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.Cflag = attrs.Cflag &^ (serial.CSIZE | serial.CSTOPB | serial.PARENB)
	attrs.Cflag |= serial.CS8 | serial.CREAD | serial.CLOCAL
	attrs.SetSpeed(serial.CFlag(baudFlag(baud)))

	if err := port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}

	return &SerialPort{port: port}, nil
}

func baudFlag(baud int) uint32 {
	switch baud {
	case 9600:
		return uint32(serial.B9600)
	case 19200:
		return uint32(serial.B19200)
	case 38400:
		return uint32(serial.B38400)
	case 115200:
		return uint32(serial.B115200)
	default:
		return uint32(serial.B57600)
	}
}

func (s *SerialPort) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialPort) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialPort) Close() error                { return s.port.Close() }

func (s *SerialPort) SetReadTimeout(timeout time.Duration) {
	s.port.SetReadTimeout(timeout)
}
