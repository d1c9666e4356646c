package core

import (
	"errors"
	"testing"
)

func TestComputeDivider(t *testing.T) {
	cases := []struct {
		name    string
		clock   uint32
		baud    uint32
		want    SPIDivider
		rateMin uint32
	}{
		{"ws2812 rate", 125_000_000, 8_500_000, SPIDivider{2, 7}, 8_928_571},
		{"1 MHz", 125_000_000, 1_000_000, SPIDivider{2, 62}, 1_008_064},
		{"100 kHz", 125_000_000, 100_000, SPIDivider{4, 255}, 122_549},
		{"2 kHz", 125_000_000, 2_000, SPIDivider{244, 255}, 2_009},
		{"48 MHz clock", 48_000_000, 8_500_000, SPIDivider{2, 2}, 12_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeDivider(tc.clock, tc.baud)
			if err != nil {
				t.Fatalf("ComputeDivider: %v", err)
			}
			if got != tc.want {
				t.Errorf("divider = %+v, want %+v", got, tc.want)
			}
			if rate := got.Rate(tc.clock); rate != tc.rateMin || rate <= tc.baud {
				t.Errorf("rate = %d, want %d (> %d)", rate, tc.rateMin, tc.baud)
			}
		})
	}
}

func TestComputeDividerUnreachable(t *testing.T) {
	cases := []struct {
		name        string
		clock, baud uint32
	}{
		{"too slow", 125_000_000, 1000},
		{"zero baud", 125_000_000, 0},
		{"equal to clock", 125_000_000, 125_000_000},
		{"half the clock", 125_000_000, 62_500_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeDivider(tc.clock, tc.baud)
			if !errors.Is(err, ErrUnreachableBaudRate) {
				t.Fatalf("err = %v, want ErrUnreachableBaudRate", err)
			}
			var ue *UnreachableBaudRateError
			if !errors.As(err, &ue) || ue.BaudHz != tc.baud || ue.ClockHz != tc.clock {
				t.Errorf("err = %#v", err)
			}
			t.Logf("%v", err)
		})
	}
}

func TestComputeDividerBounds(t *testing.T) {
	const clock = 125_000_000
	for baud := uint32(2_000); baud < 60_000_000; baud = baud*3/2 + 1 {
		d, err := ComputeDivider(clock, baud)
		if err != nil {
			continue
		}
		if d.Prescale < 2 || d.Prescale%2 != 0 {
			t.Errorf("baud %d: prescale %d not even and >= 2", baud, d.Prescale)
		}
		if d.Postdiv == 0 {
			t.Errorf("baud %d: postdiv 0", baud)
		}
		if d.Rate(clock) <= baud {
			t.Errorf("baud %d: rate %d not above target", baud, d.Rate(clock))
		}
	}
}

func newTestSPI(t *testing.T) (*SPIDriver, *SPIBlock, *SPIBlock) {
	t.Helper()
	spi0, spi1 := NewMemSPIBlock(), NewMemSPIBlock()
	d, err := NewSPIDriver(spi0, spi1)
	if err != nil {
		t.Fatalf("NewSPIDriver: %v", err)
	}
	return d, spi0, spi1
}

func TestSPIApply(t *testing.T) {
	d, spi0, spi1 := newTestSPI(t)
	spi0.CR0.Set(0x00C7) // SPO|SPH and DSS=7 set beforehand
	if err := d.Apply(SPIDivider{Prescale: 2, Postdiv: 7}, SPI0); err != nil {
		t.Fatal(err)
	}
	if got := spi0.CPSR.Get(); got != 2 {
		t.Errorf("CPSR = %d, want 2", got)
	}
	if got := spi0.CR0.Get(); got != 0x07C7 {
		t.Errorf("CR0 = 0x%04X, want 0x07C7", got)
	}
	if spi1.CPSR.Get() != 0 || spi1.CR0.Get() != 0 {
		t.Error("SPI1 touched by an SPI0 Apply")
	}

	for _, div := range []SPIDivider{
		{Prescale: 0, Postdiv: 0},
		{Prescale: 0, Postdiv: 7},
		{Prescale: 3, Postdiv: 1},
		{Prescale: 255, Postdiv: 1},
		{Prescale: 1, Postdiv: 255},
	} {
		if err := d.Apply(div, SPI0); err != ErrInvalidDivider {
			t.Errorf("Apply(%+v) = %v, want ErrInvalidDivider", div, err)
		}
	}
	if spi0.CPSR.Get() != 2 || spi0.CR0.Get() != 0x07C7 {
		t.Errorf("rejected divider written: CPSR %d CR0 0x%04X", spi0.CPSR.Get(), spi0.CR0.Get())
	}
	if err := d.Apply(SPIDivider{Prescale: 254, Postdiv: 0}, SPI0); err != nil {
		t.Errorf("prescale 254: %v", err)
	}
}

func TestNewSPIDriverClaim(t *testing.T) {
	spi0, spi1 := NewMemSPIBlock(), NewMemSPIBlock()

	if _, err := NewSPIDriver(spi0, spi0); err != ErrPeripheralClaimed {
		t.Fatalf("same block twice = %v", err)
	}
	if by := ClaimedBy(spi0); by != "" {
		t.Errorf("failed constructor left spi0 claimed by %q", by)
	}

	taken := NewMemSPIBlock()
	if _, err := NewSPIDriver(taken, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSPIDriver(spi0, taken); err != ErrPeripheralClaimed {
		t.Fatalf("spi1 already owned = %v", err)
	}
	if by := ClaimedBy(spi0); by != "" {
		t.Errorf("failed constructor left spi0 claimed by %q", by)
	}

	if _, err := NewSPIDriver(spi0, spi1); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ClaimedBy(spi0) != "spi" || ClaimedBy(spi1) != "spi" {
		t.Errorf("claims after retry: %q %q", ClaimedBy(spi0), ClaimedBy(spi1))
	}
}

func TestSPISetBaudRate(t *testing.T) {
	d, _, spi1 := newTestSPI(t)
	div, err := d.SetBaudRate(125_000_000, 8_500_000, SPI1)
	if err != nil {
		t.Fatal(err)
	}
	if div != (SPIDivider{2, 7}) || spi1.CPSR.Get() != 2 || spi1.CR0.Get()>>8 != 7 {
		t.Errorf("div %+v CPSR %d CR0 0x%X", div, spi1.CPSR.Get(), spi1.CR0.Get())
	}
	if _, err := d.SetBaudRate(125_000_000, 10, SPI1); !errors.Is(err, ErrUnreachableBaudRate) {
		t.Errorf("unreachable rate: %v", err)
	}
}

func TestSPISend(t *testing.T) {
	d, spi0, _ := newTestSPI(t)
	var sent []uint32
	spi0.DR.(*MemRegister).OnSet = func(v uint32) { sent = append(sent, v) }
	spi0.CR0.Set(0x0700)

	if err := d.Send(DataSize8, []uint16{0xE0, 0xFC, 0x1FF}, SPI0); err != nil {
		t.Fatal(err)
	}
	want := []uint32{0xE0, 0xFC, 0xFF} // words masked to the frame width
	if len(sent) != len(want) {
		t.Fatalf("sent %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("word %d = 0x%X, want 0x%X", i, sent[i], want[i])
		}
	}
	if got := spi0.CR0.Get(); got != 0x0707 {
		t.Errorf("CR0 = 0x%04X, want SCR kept and DSS=7", got)
	}
	if got := spi0.CR1.Get(); got != spiCR1SSE {
		t.Errorf("CR1 = 0x%X, want SSE only (master)", got)
	}
}

func TestSPISendWaitsForFIFO(t *testing.T) {
	d, spi0, _ := newTestSPI(t)
	sr := spi0.SR.(*MemRegister)
	// Every write fills the FIFO; Yield drains it.
	spi0.DR.(*MemRegister).OnSet = func(uint32) { sr.Value &^= spiSRTNF }
	yields := 0
	d.Yield = func() {
		yields++
		sr.Value |= spiSRTNF
	}

	if err := d.Send(DataSize8, []uint16{1, 2, 3}, SPI0); err != nil {
		t.Fatal(err)
	}
	if yields != 3 {
		t.Errorf("yields = %d, want 3", yields)
	}
}

func TestSPISendErrors(t *testing.T) {
	d, _, _ := newTestSPI(t)
	for _, dss := range []uint8{0, 2, 16, 255} {
		if err := d.Send(dss, []uint16{1}, SPI0); err != ErrInvalidDataSize {
			t.Errorf("Send(dss=%d) = %v, want ErrInvalidDataSize", dss, err)
		}
	}
	if err := d.Send(DataSize8, nil, SPISelector(2)); err != ErrInvalidSelector {
		t.Errorf("Send on SPI2 = %v", err)
	}

	only0, err := NewSPIDriver(NewMemSPIBlock(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := only0.Apply(SPIDivider{2, 2}, SPI1); err != ErrInvalidSelector {
		t.Errorf("Apply on unconfigured SPI1 = %v", err)
	}
}

func TestSPIDataSizes(t *testing.T) {
	for dss := DataSizeMin; dss <= DataSizeMax; dss++ {
		d, spi0, _ := newTestSPI(t)
		var last uint32
		spi0.DR.(*MemRegister).OnSet = func(v uint32) { last = v }
		if err := d.Send(dss, []uint16{0xFFFF}, SPI0); err != nil {
			t.Fatalf("dss %d: %v", dss, err)
		}
		if want := uint32(1)<<(dss+1) - 1; last != want {
			t.Errorf("dss %d: wrote 0x%X, want 0x%X", dss, last, want)
		}
		if spi0.CR0.Get()&spiCR0DSSMask != uint32(dss) {
			t.Errorf("dss %d: CR0 = 0x%X", dss, spi0.CR0.Get())
		}
	}
}

func TestSPIFlush(t *testing.T) {
	d, spi0, _ := newTestSPI(t)
	sr := spi0.SR.(*MemRegister)
	sr.Value = spiSRBSY | spiSRTNF
	polls := 0
	d.Yield = func() {
		polls++
		if polls == 2 {
			sr.Value = spiSRTFE | spiSRTNF
		}
	}
	if err := d.Flush(SPI0); err != nil {
		t.Fatal(err)
	}
	if polls != 2 {
		t.Errorf("polls = %d, want 2", polls)
	}
}

func TestSPIPort(t *testing.T) {
	d, spi0, _ := newTestSPI(t)
	var sent []uint32
	spi0.DR.(*MemRegister).OnSet = func(v uint32) { sent = append(sent, v) }

	port, err := d.Port(SPI0, DataSize8)
	if err != nil {
		t.Fatal(err)
	}
	if err := port.Tx([]byte{0xE0, 0xFC}, nil); err != nil {
		t.Fatal(err)
	}
	if b, err := port.Transfer(0x00); err != nil || b != 0 {
		t.Errorf("Transfer = %d, %v", b, err)
	}
	if err := port.WriteSymbols([]uint16{0xE0}); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 4 || sent[0] != 0xE0 || sent[1] != 0xFC || sent[3] != 0xE0 {
		t.Errorf("sent %v", sent)
	}
	if err := port.Tx([]byte{1}, make([]byte, 1)); err != ErrTxOnly {
		t.Errorf("Tx with rx buffer = %v, want ErrTxOnly", err)
	}
	if _, err := d.Port(SPI0, 17); err != ErrInvalidDataSize {
		t.Errorf("Port(dss 17) = %v", err)
	}
}
