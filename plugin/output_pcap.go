package plugin

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/vearne/framereplay/protocol"
	"github.com/vearne/framereplay/util"
)

const (
	pcapSnapLen = 262144
	// arbitrary initial sequence numbers for the synthetic TCP stream
	clientISN = 1000
	serverISN = 5000
)

var (
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	serverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// PcapOutput writes session records as synthetic Ethernet/IP/TCP packets so a
// replay can be opened next to the original trace in wireshark.
type PcapOutput struct {
	sync.Mutex
	path   string
	file   *os.File
	writer *pcapgo.Writer
	// next sequence number of each side
	clientSeq uint32
	serverSeq uint32
}

func NewPcapOutput(path string) (*PcapOutput, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create pcap")
	}
	w := pcapgo.NewWriter(file)
	if err = w.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "write pcap file header")
	}

	var o PcapOutput
	o.path = path
	o.file = file
	o.writer = w
	o.clientSeq = clientISN
	o.serverSeq = serverISN
	return &o, nil
}

func (o *PcapOutput) Write(msg *protocol.Message) error {
	o.Lock()
	defer o.Unlock()

	localIP, localPort, err := util.ParseIPPort(msg.Meta.LocalAddr)
	if err != nil {
		return errors.Wrap(err, "local address")
	}
	remoteIP, remotePort, err := util.ParseIPPort(msg.Meta.RemoteAddr)
	if err != nil {
		return errors.Wrap(err, "remote address")
	}

	eth := &layers.Ethernet{}
	tcp := &layers.TCP{
		PSH:    true,
		ACK:    true,
		Window: 65535,
	}
	var srcIP, dstIP net.IP
	if msg.Direction == protocol.DirectionOut {
		eth.SrcMAC, eth.DstMAC = clientMAC, serverMAC
		srcIP, dstIP = localIP, remoteIP
		tcp.SrcPort, tcp.DstPort = layers.TCPPort(localPort), layers.TCPPort(remotePort)
		tcp.Seq, tcp.Ack = o.clientSeq, o.serverSeq
		o.clientSeq += uint32(len(msg.Payload))
	} else {
		eth.SrcMAC, eth.DstMAC = serverMAC, clientMAC
		srcIP, dstIP = remoteIP, localIP
		tcp.SrcPort, tcp.DstPort = layers.TCPPort(remotePort), layers.TCPPort(localPort)
		tcp.Seq, tcp.Ack = o.serverSeq, o.clientSeq
		o.serverSeq += uint32(len(msg.Payload))
	}

	var network gopacket.SerializableLayer
	if srcIP.To4() != nil {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    srcIP.To4(),
			DstIP:    dstIP.To4(),
		}
		if err = tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      srcIP,
			DstIP:      dstIP,
		}
		if err = tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err = gopacket.SerializeLayers(buf, opts, eth, network, tcp, gopacket.Payload(msg.Payload))
	if err != nil {
		return errors.Wrap(err, "serialize packet")
	}

	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, msg.Meta.Timestamp),
		CaptureLength: len(data),
		Length:        len(data),
	}
	return o.writer.WritePacket(ci, data)
}

func (o *PcapOutput) Close() error {
	o.Lock()
	defer o.Unlock()
	return o.file.Close()
}

func (o *PcapOutput) String() string {
	return "Pcap Output, path:" + o.path
}
