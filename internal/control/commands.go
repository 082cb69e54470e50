package control

// Command bytes. Matching is case-sensitive.
const (
	CmdStreamWeights byte = 'r'
	CmdStreamCoP     byte = 'c'
	CmdStop          byte = 's'
	CmdTare          byte = 'z'
	CmdCalibrate     byte = 'k'
	CmdHelp          byte = 'h'
)

// Operator messages. Host tools match these as line prefixes.
const (
	MsgTaring           = "Taring... remove all weight from the platform."
	MsgTareDone         = "Tare complete."
	MsgTareFailed       = "Tare failed:"
	MsgCalibrateEmpty   = "Calibration: remove all weight from the platform. Taring..."
	MsgCalibratePlace   = "Place the known weight at the centre of the platform."
	MsgCalibratePrompt  = "Enter the weight in lbs:"
	MsgCalibrateInvalid = "Invalid weight. Calibration aborted, settings unchanged."
	MsgCalibrateFailed  = "Calibration failed:"
	MsgCalibrateError   = "Calibration error:"
	MsgCalibrateDone    = "Calibration complete. Factor:"
)

// HelpText lists the commands.
const HelpText = `--- Force plate commands ---
 r : stream weights (A,B,C,D lbs)
 c : stream centre of pressure (x, y)
 s : stop streaming
 z : tare all sensors
 k : calibrate with a known weight
 h : show this help
`
