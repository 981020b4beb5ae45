package protocol

import "strconv"

// Command identifies the operation a frame carries.
type Command uint64

const (
	GetSensorList       Command = 1
	GetSensorData       Command = 2
	SensorDataSubscribe Command = 3
	SensorDataUpdated   Command = 4
)

// PushEventBase is the first event id the agent mints for unsolicited pushes.
// Client request ids count up from 1 and never reach this range.
const PushEventBase uint64 = 1 << 63

func (c Command) String() string {
	switch c {
	case GetSensorList:
		return "GET_SENSOR_LIST"
	case GetSensorData:
		return "GET_SENSOR_DATA"
	case SensorDataSubscribe:
		return "SENSOR_DATA_SUBSCRIBE"
	case SensorDataUpdated:
		return "SENSOR_DATA_UPDATED"
	default:
		return "COMMAND_" + strconv.FormatUint(uint64(c), 10)
	}
}
