package greenlight

import "google.golang.org/protobuf/encoding/protowire"

// Amount 金额
// Mirrors the oneof unit of the node protocol; only one field is set.
type Amount struct {
	Millisatoshi uint64
	Satoshi      uint64
	Bitcoin      uint64
	All          bool
	Any          bool
}

// Sat 换算为聪，与设置的单位无关
func (a *Amount) Sat() int64 {
	if a == nil {
		return 0
	}
	switch {
	case a.Satoshi > 0:
		return int64(a.Satoshi)
	case a.Millisatoshi > 0:
		return int64(a.Millisatoshi / 1000)
	case a.Bitcoin > 0:
		return int64(a.Bitcoin * 100_000_000)
	}
	return 0
}

// SatAmount 以聪为单位创建金额
func SatAmount(sat int64) *Amount {
	return &Amount{Satoshi: uint64(sat)}
}

// appendWire writes exactly one oneof member. Satoshi is the fallback and is
// written even when zero.
func (a *Amount) appendWire(b []byte) []byte {
	num, v := protowire.Number(2), a.Satoshi
	switch {
	case a.Millisatoshi > 0:
		num, v = 1, a.Millisatoshi
	case a.Bitcoin > 0:
		num, v = 3, a.Bitcoin
	case a.All:
		num, v = 4, 1
	case a.Any:
		num, v = 5, 1
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func (a *Amount) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			a.Millisatoshi = f.v
		case 2:
			a.Satoshi = f.v
		case 3:
			a.Bitcoin = f.v
		case 4:
			a.All = f.v != 0
		case 5:
			a.Any = f.v != 0
		}
		return nil
	})
}

// RoutehintHop 路由提示中的一跳
type RoutehintHop struct {
	NodeID          []byte
	ShortChannelID  string
	FeeBase         uint64
	FeeProp         uint32
	CltvExpiryDelta uint32
}

func (h *RoutehintHop) appendWire(b []byte) []byte {
	b = appendBytes(b, 1, h.NodeID)
	b = appendString(b, 2, h.ShortChannelID)
	b = appendVarint(b, 3, h.FeeBase)
	b = appendVarint(b, 4, uint64(h.FeeProp))
	return appendVarint(b, 5, uint64(h.CltvExpiryDelta))
}

func (h *RoutehintHop) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			h.NodeID = f.bytes()
		case 2:
			h.ShortChannelID = f.str()
		case 3:
			h.FeeBase = f.v
		case 4:
			h.FeeProp = uint32(f.v)
		case 5:
			h.CltvExpiryDelta = uint32(f.v)
		}
		return nil
	})
}

// Routehint 路由提示
type Routehint struct {
	Hops []RoutehintHop
}

func (r *Routehint) appendWire(b []byte) []byte {
	for i := range r.Hops {
		b = appendMessage(b, 1, &r.Hops[i])
	}
	return b
}

func (r *Routehint) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		if f.num == 1 {
			var h RoutehintHop
			if err := h.readWire(f.raw); err != nil {
				return err
			}
			r.Hops = append(r.Hops, h)
		}
		return nil
	})
}

// TlvField 附加 TLV 记录
type TlvField struct {
	Type  uint64
	Value []byte
}

func (t *TlvField) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, t.Type)
	return appendBytes(b, 2, t.Value)
}

func (t *TlvField) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			t.Type = f.v
		case 2:
			t.Value = f.bytes()
		}
		return nil
	})
}

// KeysendRequest 主动推送支付请求
type KeysendRequest struct {
	NodeID     []byte
	Label      string
	Amount     *Amount
	Routehints []Routehint
	ExtraTlvs  []TlvField
}

func (r *KeysendRequest) appendWire(b []byte) []byte {
	b = appendBytes(b, 1, r.NodeID)
	if r.Amount != nil {
		b = appendMessage(b, 2, r.Amount)
	}
	b = appendString(b, 3, r.Label)
	for i := range r.Routehints {
		b = appendMessage(b, 4, &r.Routehints[i])
	}
	for i := range r.ExtraTlvs {
		b = appendMessage(b, 5, &r.ExtraTlvs[i])
	}
	return b
}

func (r *KeysendRequest) readWire(b []byte) error {
	return eachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.NodeID = f.bytes()
		case 2:
			r.Amount, err = readAmount(f.raw)
		case 3:
			r.Label = f.str()
		case 4:
			var h Routehint
			if err = h.readWire(f.raw); err == nil {
				r.Routehints = append(r.Routehints, h)
			}
		case 5:
			var t TlvField
			if err = t.readWire(f.raw); err == nil {
				r.ExtraTlvs = append(r.ExtraTlvs, t)
			}
		}
		return err
	})
}

// PayStatus 支付状态
type PayStatus int32

const (
	PayStatusPending  PayStatus = 0
	PayStatusComplete PayStatus = 1
	PayStatusFailed   PayStatus = 2
)

// Payment 支付结果
type Payment struct {
	Destination     []byte
	PaymentHash     []byte
	PaymentPreimage []byte
	Status          PayStatus
	Amount          *Amount
	AmountSent      *Amount
	Bolt11          string
	CreatedAt       float64
	CompletedAt     uint64
}

func (p *Payment) appendWire(b []byte) []byte {
	b = appendBytes(b, 1, p.Destination)
	b = appendBytes(b, 2, p.PaymentHash)
	b = appendBytes(b, 3, p.PaymentPreimage)
	b = appendVarint(b, 4, uint64(p.Status))
	if p.Amount != nil {
		b = appendMessage(b, 5, p.Amount)
	}
	if p.AmountSent != nil {
		b = appendMessage(b, 6, p.AmountSent)
	}
	b = appendString(b, 7, p.Bolt11)
	b = appendDouble(b, 8, p.CreatedAt)
	return appendVarint(b, 9, p.CompletedAt)
}

func (p *Payment) readWire(b []byte) error {
	return eachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			p.Destination = f.bytes()
		case 2:
			p.PaymentHash = f.bytes()
		case 3:
			p.PaymentPreimage = f.bytes()
		case 4:
			p.Status = PayStatus(int32(f.v))
		case 5:
			p.Amount, err = readAmount(f.raw)
		case 6:
			p.AmountSent, err = readAmount(f.raw)
		case 7:
			p.Bolt11 = f.str()
		case 8:
			p.CreatedAt = f.double()
		case 9:
			p.CompletedAt = f.v
		}
		return err
	})
}

// PayRequest 发票支付请求
type PayRequest struct {
	Bolt11        string
	Amount        *Amount
	Timeout       uint32
	MaxFeePercent float64
}

func (r *PayRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.Bolt11)
	if r.Amount != nil {
		b = appendMessage(b, 2, r.Amount)
	}
	b = appendVarint(b, 3, uint64(r.Timeout))
	return appendDouble(b, 4, r.MaxFeePercent)
}

func (r *PayRequest) readWire(b []byte) error {
	return eachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.Bolt11 = f.str()
		case 2:
			r.Amount, err = readAmount(f.raw)
		case 3:
			r.Timeout = uint32(f.v)
		case 4:
			r.MaxFeePercent = f.double()
		}
		return err
	})
}

// GetInfoRequest 节点信息请求
type GetInfoRequest struct{}

func (*GetInfoRequest) appendWire(b []byte) []byte { return b }
func (*GetInfoRequest) readWire(b []byte) error { return eachField(b, skipField) }

// GetInfoResponse 节点信息
type GetInfoResponse struct {
	NodeID      []byte
	Alias       string
	NumPeers    uint32
	Version     string
	BlockHeight uint32
	Network     string
}

func (r *GetInfoResponse) appendWire(b []byte) []byte {
	b = appendBytes(b, 1, r.NodeID)
	b = appendString(b, 2, r.Alias)
	b = appendVarint(b, 4, uint64(r.NumPeers))
	b = appendString(b, 6, r.Version)
	b = appendVarint(b, 7, uint64(r.BlockHeight))
	return appendString(b, 8, r.Network)
}

func (r *GetInfoResponse) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			r.NodeID = f.bytes()
		case 2:
			r.Alias = f.str()
		case 4:
			r.NumPeers = uint32(f.v)
		case 6:
			r.Version = f.str()
		case 7:
			r.BlockHeight = uint32(f.v)
		case 8:
			r.Network = f.str()
		}
		return nil
	})
}

// ListPeersRequest 对等节点查询请求
type ListPeersRequest struct {
	NodeID string
}

func (r *ListPeersRequest) appendWire(b []byte) []byte {
	return appendString(b, 1, r.NodeID)
}

func (r *ListPeersRequest) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		if f.num == 1 {
			r.NodeID = f.str()
		}
		return nil
	})
}

// Channel 通道
type Channel struct {
	State          string
	ShortChannelID string
	ChannelID      string
	FundingTxid    string
	Private        bool
	Total          string
	Spendable      string
	Receivable     string
}

func (c *Channel) appendWire(b []byte) []byte {
	b = appendString(b, 1, c.State)
	b = appendString(b, 3, c.ShortChannelID)
	b = appendString(b, 5, c.ChannelID)
	b = appendString(b, 6, c.FundingTxid)
	b = appendBool(b, 9, c.Private)
	b = appendString(b, 10, c.Total)
	b = appendString(b, 12, c.Spendable)
	return appendString(b, 13, c.Receivable)
}

func (c *Channel) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			c.State = f.str()
		case 3:
			c.ShortChannelID = f.str()
		case 5:
			c.ChannelID = f.str()
		case 6:
			c.FundingTxid = f.str()
		case 9:
			c.Private = f.v != 0
		case 10:
			c.Total = f.str()
		case 12:
			c.Spendable = f.str()
		case 13:
			c.Receivable = f.str()
		}
		return nil
	})
}

// Address 对等节点地址
type Address struct {
	Type int32
	Addr string
	Port uint32
}

func (a *Address) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, uint64(a.Type))
	b = appendString(b, 2, a.Addr)
	return appendVarint(b, 3, uint64(a.Port))
}

func (a *Address) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			a.Type = int32(f.v)
		case 2:
			a.Addr = f.str()
		case 3:
			a.Port = uint32(f.v)
		}
		return nil
	})
}

// Peer 对等节点
type Peer struct {
	ID        []byte
	Connected bool
	Addresses []Address
	Channels  []Channel
}

func (p *Peer) appendWire(b []byte) []byte {
	b = appendBytes(b, 1, p.ID)
	b = appendBool(b, 2, p.Connected)
	for i := range p.Addresses {
		b = appendMessage(b, 3, &p.Addresses[i])
	}
	for i := range p.Channels {
		b = appendMessage(b, 5, &p.Channels[i])
	}
	return b
}

func (p *Peer) readWire(b []byte) error {
	return eachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			p.ID = f.bytes()
		case 2:
			p.Connected = f.v != 0
		case 3:
			var a Address
			if err = a.readWire(f.raw); err == nil {
				p.Addresses = append(p.Addresses, a)
			}
		case 5:
			var c Channel
			if err = c.readWire(f.raw); err == nil {
				p.Channels = append(p.Channels, c)
			}
		}
		return err
	})
}

// ListPeersResponse 对等节点列表
type ListPeersResponse struct {
	Peers []Peer
}

func (r *ListPeersResponse) appendWire(b []byte) []byte {
	for i := range r.Peers {
		b = appendMessage(b, 1, &r.Peers[i])
	}
	return b
}

func (r *ListPeersResponse) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var p Peer
		if err := p.readWire(f.raw); err != nil {
			return err
		}
		r.Peers = append(r.Peers, p)
		return nil
	})
}

// ConnectRequest 连接对等节点请求
type ConnectRequest struct {
	NodeID string
	Addr   string
}

func (r *ConnectRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.NodeID)
	return appendString(b, 2, r.Addr)
}

func (r *ConnectRequest) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			r.NodeID = f.str()
		case 2:
			r.Addr = f.str()
		}
		return nil
	})
}

// ConnectResponse 连接结果
type ConnectResponse struct {
	NodeID   string
	Features string
}

func (r *ConnectResponse) appendWire(b []byte) []byte {
	b = appendString(b, 1, r.NodeID)
	return appendString(b, 2, r.Features)
}

func (r *ConnectResponse) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			r.NodeID = f.str()
		case 2:
			r.Features = f.str()
		}
		return nil
	})
}

// ListInvoicesRequest 发票查询请求
type ListInvoicesRequest struct{}

func (*ListInvoicesRequest) appendWire(b []byte) []byte { return b }
func (*ListInvoicesRequest) readWire(b []byte) error { return eachField(b, skipField) }

// InvoiceStatus 发票状态
type InvoiceStatus int32

const (
	InvoiceStatusUnpaid  InvoiceStatus = 0
	InvoiceStatusPaid    InvoiceStatus = 1
	InvoiceStatusExpired InvoiceStatus = 2
)

// Invoice 发票
type Invoice struct {
	Label           string
	Description     string
	Amount          *Amount
	Received        *Amount
	Status          InvoiceStatus
	PaymentTime     uint32
	ExpiryTime      uint32
	Bolt11          string
	PaymentHash     []byte
	PaymentPreimage []byte
}

func (inv *Invoice) appendWire(b []byte) []byte {
	b = appendString(b, 1, inv.Label)
	b = appendString(b, 2, inv.Description)
	if inv.Amount != nil {
		b = appendMessage(b, 3, inv.Amount)
	}
	if inv.Received != nil {
		b = appendMessage(b, 4, inv.Received)
	}
	b = appendVarint(b, 5, uint64(inv.Status))
	b = appendVarint(b, 6, uint64(inv.PaymentTime))
	b = appendVarint(b, 7, uint64(inv.ExpiryTime))
	b = appendString(b, 8, inv.Bolt11)
	b = appendBytes(b, 9, inv.PaymentHash)
	return appendBytes(b, 10, inv.PaymentPreimage)
}

func (inv *Invoice) readWire(b []byte) error {
	return eachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			inv.Label = f.str()
		case 2:
			inv.Description = f.str()
		case 3:
			inv.Amount, err = readAmount(f.raw)
		case 4:
			inv.Received, err = readAmount(f.raw)
		case 5:
			inv.Status = InvoiceStatus(int32(f.v))
		case 6:
			inv.PaymentTime = uint32(f.v)
		case 7:
			inv.ExpiryTime = uint32(f.v)
		case 8:
			inv.Bolt11 = f.str()
		case 9:
			inv.PaymentHash = f.bytes()
		case 10:
			inv.PaymentPreimage = f.bytes()
		}
		return err
	})
}

// ListInvoicesResponse 发票列表
type ListInvoicesResponse struct {
	Invoices []Invoice
}

func (r *ListInvoicesResponse) appendWire(b []byte) []byte {
	for i := range r.Invoices {
		b = appendMessage(b, 1, &r.Invoices[i])
	}
	return b
}

func (r *ListInvoicesResponse) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var inv Invoice
		if err := inv.readWire(f.raw); err != nil {
			return err
		}
		r.Invoices = append(r.Invoices, inv)
		return nil
	})
}

// ListPaymentsRequest 支付记录查询请求
type ListPaymentsRequest struct{}

func (*ListPaymentsRequest) appendWire(b []byte) []byte { return b }
func (*ListPaymentsRequest) readWire(b []byte) error { return eachField(b, skipField) }

// ListPaymentsResponse 支付记录列表
type ListPaymentsResponse struct {
	Payments []Payment
}

func (r *ListPaymentsResponse) appendWire(b []byte) []byte {
	for i := range r.Payments {
		b = appendMessage(b, 1, &r.Payments[i])
	}
	return b
}

func (r *ListPaymentsResponse) readWire(b []byte) error {
	return eachField(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var p Payment
		if err := p.readWire(f.raw); err != nil {
			return err
		}
		r.Payments = append(r.Payments, p)
		return nil
	})
}

// InvoiceRequest 创建发票请求
type InvoiceRequest struct {
	Amount      *Amount
	Label       string
	Description string
}

func (r *InvoiceRequest) appendWire(b []byte) []byte {
	if r.Amount != nil {
		b = appendMessage(b, 1, r.Amount)
	}
	b = appendString(b, 2, r.Label)
	return appendString(b, 3, r.Description)
}

func (r *InvoiceRequest) readWire(b []byte) error {
	return eachField(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.Amount, err = readAmount(f.raw)
		case 2:
			r.Label = f.str()
		case 3:
			r.Description = f.str()
		}
		return err
	})
}

func skipField(field) error { return nil }
