package sx126x

// Opcodes
const (
	cmdSetStandby            byte = 0x80
	cmdSetTx                 byte = 0x83
	cmdSetRx                 byte = 0x82
	cmdSetRfFrequency        byte = 0x86
	cmdSetPacketType         byte = 0x8A
	cmdSetModulationParams   byte = 0x8B
	cmdSetPacketParams       byte = 0x8C
	cmdSetTxParams           byte = 0x8E
	cmdSetBufferBaseAddress  byte = 0x8F
	cmdSetPaConfig           byte = 0x95
	cmdSetRegulatorMode      byte = 0x96
	cmdSetDIO3AsTCXOCtrl     byte = 0x97
	cmdCalibrateImage        byte = 0x98
	cmdCalibrate             byte = 0x89
	cmdSetDIO2AsRfSwitchCtrl byte = 0x9D
	cmdSetDioIrqParams       byte = 0x08
	cmdClearIrqStatus        byte = 0x02
	cmdGetIrqStatus          byte = 0x12
	cmdGetRxBufferStatus     byte = 0x13
	cmdGetPacketStatus       byte = 0x14
	cmdWriteRegister         byte = 0x0D
	cmdReadRegister          byte = 0x1D
	cmdWriteBuffer           byte = 0x0E
	cmdReadBuffer            byte = 0x1E
	cmdGetDeviceErrors       byte = 0x17
	cmdClearDeviceErrors     byte = 0x07
	cmdNop                   byte = 0x00
)

// Command parameters
const (
	standbyRC      byte = 0x00
	packetTypeLoRa byte = 0x01
	regulatorLDO   byte = 0x00
	regulatorDCDC  byte = 0x01
	calibrateAll   byte = 0x7F
	headerExplicit byte = 0x00
	crcOn          byte = 0x01
	iqStandard     byte = 0x00
	rampTime200us  byte = 0x04
)

// Registers
const (
	regSyncWord  uint16 = 0x0740
	regOCP       uint16 = 0x08E7
	regFreqError uint16 = 0x076B
)

// IRQ bits
const (
	irqTxDone    uint16 = 1 << 0
	irqRxDone    uint16 = 1 << 1
	irqHeaderErr uint16 = 1 << 5
	irqCRCErr    uint16 = 1 << 6
	irqTimeout   uint16 = 1 << 9
	irqAll       uint16 = 0xFFFF

	irqCompletion = irqTxDone | irqRxDone | irqHeaderErr | irqCRCErr | irqTimeout
)

// bandwidthCodes maps radio.Bandwidths to SetModulationParams values.
var bandwidthCodes = []byte{0x00, 0x08, 0x01, 0x09, 0x02, 0x0A, 0x03, 0x04, 0x05, 0x06}

// tcxoVoltages maps DIO3 TCXO supply voltages to their codes.
var tcxoVoltages = []struct {
	volts float64
	code  byte
}{
	{1.6, 0x00}, {1.7, 0x01}, {1.8, 0x02}, {2.2, 0x03},
	{2.4, 0x04}, {2.7, 0x05}, {3.0, 0x06}, {3.3, 0x07},
}

// frequencyWord converts Hz to the SetRfFrequency value, Fxtal = 32 MHz.
func frequencyWord(hz uint32) uint32 {
	return uint32((uint64(hz) << 25) / 32000000)
}

// imageCalibration returns the CalibrateImage band covering hz.
func imageCalibration(hz uint32) (byte, byte) {
	switch {
	case hz > 900000000:
		return 0xE1, 0xE9
	case hz > 850000000:
		return 0xD7, 0xDB
	case hz > 770000000:
		return 0xC1, 0xC5
	case hz > 460000000:
		return 0x75, 0x81
	default:
		return 0x6B, 0x6F
	}
}

// lowDataRateOptimize is required when the symbol time exceeds 16 ms.
func lowDataRateOptimize(sf uint8, khz float64) byte {
	if float64(uint32(1)<<sf)/khz > 16 {
		return 1
	}
	return 0
}

// syncWordBytes expands a one byte LoRa sync word into the register pair.
func syncWordBytes(sw uint8) []byte {
	return []byte{(sw & 0xF0) | 0x04, (sw&0x0F)<<4 | 0x04}
}

// frequencyError scales the raw 20-bit FEI reading to Hz.
func frequencyError(raw []byte, khz float64) float64 {
	efe := int32(raw[0]&0x0F)<<16 | int32(raw[1])<<8 | int32(raw[2])
	if efe&0x80000 != 0 {
		efe -= 0x100000
	}
	return 1.55 * float64(efe) / (1600.0 / khz)
}
