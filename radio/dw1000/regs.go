package dw1000

// DW1000 register file IDs (subset used by the survey transport).
const (
	regDevID     = 0x00
	regPanAdr    = 0x03
	regSysCfg    = 0x04
	regTxFctrl   = 0x08
	regTxBuffer  = 0x09
	regDxTime    = 0x0A
	regRxFwto    = 0x0C
	regSysCtrl   = 0x0D
	regSysStatus = 0x0F
	regRxFinfo   = 0x10
	regRxBuffer  = 0x11
)

// Expected DEV_ID value: 0xDECA0130, ridev "DECA", model 1, ver/rev 3.0.
const devIDValue = 0xDECA0130

// SYS_CFG bits.
const (
	sysCfgRxWtoE = 1 << 28 // receive wait timeout enable
)

// SYS_CTRL bits.
const (
	sysCtrlTxStrt = 1 << 1
	sysCtrlTxDlys = 1 << 2
	sysCtrlTrxOff = 1 << 6
	sysCtrlRxEnab = 1 << 8
	sysCtrlRxDlye = 1 << 9
)

// SYS_STATUS bits.
const (
	sysStatusTxFrs    = 1 << 7  // tx frame sent
	sysStatusRxDfr    = 1 << 13 // rx data frame ready
	sysStatusRxFcg    = 1 << 14 // rx FCS good
	sysStatusRxFce    = 1 << 15 // rx FCS error
	sysStatusRxRfsl   = 1 << 16 // rx reed-solomon sync loss
	sysStatusRxFwto   = 1 << 17 // rx frame wait timeout
	sysStatusRxPhe    = 1 << 12 // rx PHY header error
	sysStatusHpdWarn  = 1 << 27 // half period delay warning
	sysStatusRxSfdTo  = 1 << 26 // rx SFD timeout
	sysStatusClkPllLL = 1 << 25 // clock PLL losing lock
	sysStatusRfPllLL  = 1 << 24 // RF PLL losing lock
)

// RX_FINFO fields.
const rxFinfoLenMask = 0x3FF // RXFLEN+RXFLE, frame length in bytes

// TX_FCTRL fields (low 32 bits).
const txFctrlLenMask = 0x3FF
