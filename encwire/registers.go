package encwire

import "strconv"

// Reg is a logical control register address. It packs the register class,
// the bank the register lives in and its 5 bit address within the bank:
//
//	bits 15:12  class (0=ETH, 1=MAC/MII)
//	bits 11:8   bank 0..3
//	bits 4:0    in-bank address
//
// ETH registers reply to RCR with the value on the second byte. MAC and MII
// registers shift out a dummy byte first.
type Reg uint16

const (
	classETH Reg = 0 << 12
	classMAC Reg = 1 << 12

	regClassMask = 0xF000
	regBankMask  = 0x0F00
	regBankShift = 8
	regAddrMask  = 0x001F

	bank1 Reg = 1 << regBankShift
	bank2 Reg = 2 << regBankShift
	bank3 Reg = 3 << regBankShift

	// firstSharedAddr is the in-bank address where the common registers
	// (EIE, EIR, ESTAT, ECON2, ECON1) begin. They are mapped into all banks.
	firstSharedAddr = 0x1B
)

// Bank returns the bank the register must be accessed from.
func (r Reg) Bank() uint8 { return uint8((r & regBankMask) >> regBankShift) }

// Offset returns the 5 bit address sent in RCR/WCR/BFS/BFC commands.
func (r Reg) Offset() uint8 { return uint8(r & regAddrMask) }

// IsETH reports whether the register is an ETH register, which is read with a
// single reply byte. MAC and MII registers are read with a leading dummy byte.
func (r Reg) IsETH() bool { return r&regClassMask == classETH }

// IsShared reports whether the register is accessible from every bank.
func (r Reg) IsShared() bool { return r.Offset() >= firstSharedAddr }

func (r Reg) String() string {
	name := RegisterName(r.Bank(), r.Offset())
	if name == "" {
		return "Reg(" + strconv.Itoa(int(r)) + ")"
	}
	return name
}

// Common registers, present in all banks.
const (
	EIE   = classETH | 0x1B
	EIR   = classETH | 0x1C
	ESTAT = classETH | 0x1D
	ECON2 = classETH | 0x1E
	ECON1 = classETH | 0x1F
)

// Bank 0.
const (
	ERDPTL   = classETH | 0x00
	ERDPTH   = classETH | 0x01
	EWRPTL   = classETH | 0x02
	EWRPTH   = classETH | 0x03
	ETXSTL   = classETH | 0x04
	ETXSTH   = classETH | 0x05
	ETXNDL   = classETH | 0x06
	ETXNDH   = classETH | 0x07
	ERXSTL   = classETH | 0x08
	ERXSTH   = classETH | 0x09
	ERXNDL   = classETH | 0x0A
	ERXNDH   = classETH | 0x0B
	ERXRDPTL = classETH | 0x0C
	ERXRDPTH = classETH | 0x0D
	ERXWRPTL = classETH | 0x0E
	ERXWRPTH = classETH | 0x0F
	EDMASTL  = classETH | 0x10
	EDMASTH  = classETH | 0x11
	EDMANDL  = classETH | 0x12
	EDMANDH  = classETH | 0x13
	EDMADSTL = classETH | 0x14
	EDMADSTH = classETH | 0x15
	EDMACSL  = classETH | 0x16
	EDMACSH  = classETH | 0x17
)

// Bank 1.
const (
	EHT0    = classETH | bank1 | 0x00
	EHT7    = classETH | bank1 | 0x07
	EPMM0   = classETH | bank1 | 0x08
	EPMCSL  = classETH | bank1 | 0x10
	EPMCSH  = classETH | bank1 | 0x11
	EPMOL   = classETH | bank1 | 0x14
	EPMOH   = classETH | bank1 | 0x15
	ERXFCON = classETH | bank1 | 0x18
	EPKTCNT = classETH | bank1 | 0x19
)

// Bank 2.
const (
	MACON1   = classMAC | bank2 | 0x00
	MACON3   = classMAC | bank2 | 0x02
	MACON4   = classMAC | bank2 | 0x03
	MABBIPG  = classMAC | bank2 | 0x04
	MAIPGL   = classMAC | bank2 | 0x06
	MAIPGH   = classMAC | bank2 | 0x07
	MACLCON1 = classMAC | bank2 | 0x08
	MACLCON2 = classMAC | bank2 | 0x09
	MAMXFLL  = classMAC | bank2 | 0x0A
	MAMXFLH  = classMAC | bank2 | 0x0B
	MICMD    = classMAC | bank2 | 0x12
	MIREGADR = classMAC | bank2 | 0x14
	MIWRL    = classMAC | bank2 | 0x16
	MIWRH    = classMAC | bank2 | 0x17
	MIRDL    = classMAC | bank2 | 0x18
	MIRDH    = classMAC | bank2 | 0x19
)

// Bank 3.
const (
	MAADR5  = classMAC | bank3 | 0x00
	MAADR6  = classMAC | bank3 | 0x01
	MAADR3  = classMAC | bank3 | 0x02
	MAADR4  = classMAC | bank3 | 0x03
	MAADR1  = classMAC | bank3 | 0x04
	MAADR2  = classMAC | bank3 | 0x05
	EBSTSD  = classETH | bank3 | 0x06
	EBSTCON = classETH | bank3 | 0x07
	EBSTCSL = classETH | bank3 | 0x08
	EBSTCSH = classETH | bank3 | 0x09
	MISTAT  = classMAC | bank3 | 0x0A
	EREVID  = classETH | bank3 | 0x12
	ECOCON  = classETH | bank3 | 0x15
	EFLOCON = classETH | bank3 | 0x17
	EPAUSL  = classETH | bank3 | 0x18
	EPAUSH  = classETH | bank3 | 0x19
)

// IsMACRegister reports whether the register at the given bank and address
// belongs to the MAC/MII class. Used by bus analyzers and the simulator which
// only see physical addresses.
func IsMACRegister(bank, addr uint8) bool {
	if addr >= firstSharedAddr {
		return false
	}
	switch bank {
	case 2:
		return true
	case 3:
		return addr <= 0x05 || addr == 0x0A
	}
	return false
}

// RegisterName returns the datasheet name of the register at bank and
// in-bank address, or the empty string for reserved locations.
func RegisterName(bank, addr uint8) string {
	addr &= regAddrMask
	if addr >= firstSharedAddr {
		return sharedNames[addr-firstSharedAddr]
	}
	if bank > 3 {
		return ""
	}
	return bankNames[bank][addr]
}

var sharedNames = [5]string{"EIE", "EIR", "ESTAT", "ECON2", "ECON1"}

var bankNames = [4][firstSharedAddr]string{
	0: {
		"ERDPTL", "ERDPTH", "EWRPTL", "EWRPTH", "ETXSTL", "ETXSTH", "ETXNDL", "ETXNDH",
		"ERXSTL", "ERXSTH", "ERXNDL", "ERXNDH", "ERXRDPTL", "ERXRDPTH", "ERXWRPTL", "ERXWRPTH",
		"EDMASTL", "EDMASTH", "EDMANDL", "EDMANDH", "EDMADSTL", "EDMADSTH", "EDMACSL", "EDMACSH",
	},
	1: {
		"EHT0", "EHT1", "EHT2", "EHT3", "EHT4", "EHT5", "EHT6", "EHT7",
		"EPMM0", "EPMM1", "EPMM2", "EPMM3", "EPMM4", "EPMM5", "EPMM6", "EPMM7",
		"EPMCSL", "EPMCSH", "", "", "EPMOL", "EPMOH", "", "",
		"ERXFCON", "EPKTCNT",
	},
	2: {
		"MACON1", "", "MACON3", "MACON4", "MABBIPG", "", "MAIPGL", "MAIPGH",
		"MACLCON1", "MACLCON2", "MAMXFLL", "MAMXFLH", "", "", "", "",
		"", "", "MICMD", "", "MIREGADR", "", "MIWRL", "MIWRH",
		"MIRDL", "MIRDH",
	},
	3: {
		"MAADR5", "MAADR6", "MAADR3", "MAADR4", "MAADR1", "MAADR2", "EBSTSD", "EBSTCON",
		"EBSTCSL", "EBSTCSH", "MISTAT", "", "", "", "", "",
		"", "", "EREVID", "", "", "ECOCON", "", "EFLOCON",
		"EPAUSL", "EPAUSH",
	},
}

// EIE bits.
const (
	EIE_INTIE  = 1 << 7
	EIE_PKTIE  = 1 << 6
	EIE_DMAIE  = 1 << 5
	EIE_LINKIE = 1 << 4
	EIE_TXIE   = 1 << 3
	EIE_TXERIE = 1 << 1
	EIE_RXERIE = 1 << 0
)

// EIR bits.
const (
	EIR_PKTIF  = 1 << 6
	EIR_DMAIF  = 1 << 5
	EIR_LINKIF = 1 << 4
	EIR_TXIF   = 1 << 3
	EIR_TXERIF = 1 << 1
	EIR_RXERIF = 1 << 0
)

// ESTAT bits.
const (
	ESTAT_INT     = 1 << 7
	ESTAT_BUFER   = 1 << 6
	ESTAT_LATECOL = 1 << 4
	ESTAT_RXBUSY  = 1 << 2
	ESTAT_TXABRT  = 1 << 1
	ESTAT_CLKRDY  = 1 << 0
)

// ECON2 bits.
const (
	ECON2_AUTOINC = 1 << 7
	ECON2_PKTDEC  = 1 << 6
	ECON2_PWRSV   = 1 << 5
	ECON2_VRPS    = 1 << 3
)

// ECON1 bits.
const (
	ECON1_TXRST  = 1 << 7
	ECON1_RXRST  = 1 << 6
	ECON1_DMAST  = 1 << 5
	ECON1_CSUMEN = 1 << 4
	ECON1_TXRTS  = 1 << 3
	ECON1_RXEN   = 1 << 2
	ECON1_BSEL1  = 1 << 1
	ECON1_BSEL0  = 1 << 0
	ECON1_BSEL   = ECON1_BSEL1 | ECON1_BSEL0
)

// ERXFCON bits.
const (
	ERXFCON_UCEN  = 1 << 7
	ERXFCON_ANDOR = 1 << 6
	ERXFCON_CRCEN = 1 << 5
	ERXFCON_PMEN  = 1 << 4
	ERXFCON_MPEN  = 1 << 3
	ERXFCON_HTEN  = 1 << 2
	ERXFCON_MCEN  = 1 << 1
	ERXFCON_BCEN  = 1 << 0
)

// MACON1 bits.
const (
	MACON1_TXPAUS  = 1 << 3
	MACON1_RXPAUS  = 1 << 2
	MACON1_PASSALL = 1 << 1
	MACON1_MARXEN  = 1 << 0
)

// MACON3 bits.
const (
	MACON3_PADCFG2 = 1 << 7
	MACON3_PADCFG1 = 1 << 6
	MACON3_PADCFG0 = 1 << 5
	MACON3_TXCRCEN = 1 << 4
	MACON3_PHDREN  = 1 << 3
	MACON3_HFRMEN  = 1 << 2
	MACON3_FRMLNEN = 1 << 1
	MACON3_FULDPX  = 1 << 0
)

// MACON4 bits.
const (
	MACON4_DEFER   = 1 << 6
	MACON4_BPEN    = 1 << 5
	MACON4_NOBKOFF = 1 << 4
)

// MICMD and MISTAT bits.
const (
	MICMD_MIISCAN = 1 << 1
	MICMD_MIIRD   = 1 << 0

	MISTAT_NVALID = 1 << 2
	MISTAT_SCAN   = 1 << 1
	MISTAT_BUSY   = 1 << 0
)

// PHYReg is the address of a register of the embedded PHY, reached through
// the MII management interface.
type PHYReg uint8

const (
	PHCON1  PHYReg = 0x00
	PHSTAT1 PHYReg = 0x01
	PHID1   PHYReg = 0x02
	PHID2   PHYReg = 0x03
	PHCON2  PHYReg = 0x10
	PHSTAT2 PHYReg = 0x11
	PHIE    PHYReg = 0x12
	PHIR    PHYReg = 0x13
	PHLCON  PHYReg = 0x14
)

func (r PHYReg) String() string {
	switch r {
	case PHCON1:
		return "PHCON1"
	case PHSTAT1:
		return "PHSTAT1"
	case PHID1:
		return "PHID1"
	case PHID2:
		return "PHID2"
	case PHCON2:
		return "PHCON2"
	case PHSTAT2:
		return "PHSTAT2"
	case PHIE:
		return "PHIE"
	case PHIR:
		return "PHIR"
	case PHLCON:
		return "PHLCON"
	}
	return "PHYReg(" + strconv.Itoa(int(r)) + ")"
}

// PHY register bits.
const (
	PHCON1_PRST    = 1 << 15
	PHCON1_PLOOPBK = 1 << 14
	PHCON1_PPWRSV  = 1 << 11
	PHCON1_PDPXMD  = 1 << 8

	PHSTAT1_PFDPX  = 1 << 12
	PHSTAT1_PHDPX  = 1 << 11
	PHSTAT1_LLSTAT = 1 << 2
	PHSTAT1_JBSTAT = 1 << 1

	PHCON2_FRCLNK = 1 << 14
	PHCON2_TXDIS  = 1 << 13
	PHCON2_JABBER = 1 << 10
	PHCON2_HDLDIS = 1 << 8

	PHSTAT2_TXSTAT  = 1 << 13
	PHSTAT2_RXSTAT  = 1 << 12
	PHSTAT2_COLSTAT = 1 << 11
	PHSTAT2_LSTAT   = 1 << 10
	PHSTAT2_DPXSTAT = 1 << 9
	PHSTAT2_PLRITY  = 1 << 5

	PHIE_PLNKIE = 1 << 4
	PHIE_PGEIE  = 1 << 1

	PHIR_PLNKIF = 1 << 4
	PHIR_PGIF   = 1 << 2
)

// Expected PHY identifier values. PHID2 low 10 bits hold part number and
// revision which are not checked.
const (
	PHID1Value   = 0x0083
	PHID2Value   = 0x1400
	PHID2OUIMask = 0xFC00
)
