package host

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/nmasdoufi/warranty/pkg/config"
	"github.com/nmasdoufi/warranty/pkg/inventory"
	"github.com/nmasdoufi/warranty/pkg/logging"
)

// entPhysicalSerialNum for the first physical entity (ENTITY-MIB).
const oidEntPhysicalSerialNum = ".1.3.6.1.2.1.47.1.1.1.1.11.1"

// maxTargets caps how many addresses a single CIDR may expand to.
const maxTargets = 4096

// SNMPReader reads device serials over SNMP v2c.
type SNMPReader struct {
	cfg    config.SNMPConfig
	logger *logging.Logger
}

// NewSNMPReader builds a reader from config, filling unset values.
func NewSNMPReader(cfg config.SNMPConfig, logger *logging.Logger) *SNMPReader {
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.Default().SNMP.Timeout
	}
	return &SNMPReader{cfg: cfg, logger: logger}
}

// Serials queries every target in order. Targets are hosts, addresses or
// CIDR ranges. Hosts that do not answer are logged and skipped.
func (r *SNMPReader) Serials(ctx context.Context, targets []string) ([]string, error) {
	hosts, err := ExpandTargets(targets)
	if err != nil {
		return nil, err
	}
	var serials []string
	for _, h := range hosts {
		if ctx.Err() != nil {
			return serials, ctx.Err()
		}
		s, err := r.Serial(ctx, h)
		if err != nil {
			r.logger.Debugf("snmp %s: %v", h, err)
			continue
		}
		r.logger.Infof("snmp %s reported serial %s", h, s)
		serials = append(serials, s)
	}
	return serials, nil
}

// Serial reads entPhysicalSerialNum.1 from one host.
func (r *SNMPReader) Serial(ctx context.Context, target string) (string, error) {
	snmp := &gosnmp.GoSNMP{
		Target:    target,
		Port:      r.cfg.Port,
		Community: r.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   r.cfg.Timeout,
		Retries:   r.cfg.Retries,
		Context:   ctx,
	}
	if err := snmp.Connect(); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer snmp.Conn.Close()
	result, err := snmp.Get([]string{oidEntPhysicalSerialNum})
	if err != nil {
		return "", fmt.Errorf("get: %w", err)
	}
	return serialFromPDUs(result.Variables)
}

func serialFromPDUs(vars []gosnmp.SnmpPDU) (string, error) {
	for _, v := range vars {
		if v.Name != oidEntPhysicalSerialNum {
			continue
		}
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.Null:
			return "", fmt.Errorf("entPhysicalSerialNum not available")
		}
		raw, ok := v.Value.([]byte)
		if !ok {
			return "", fmt.Errorf("entPhysicalSerialNum has unexpected type %v", v.Type)
		}
		if s := inventory.NormalizeSerial(string(raw)); s != "" {
			return s, nil
		}
		return "", fmt.Errorf("entPhysicalSerialNum is empty")
	}
	return "", fmt.Errorf("entPhysicalSerialNum missing from response")
}

// ExpandTargets turns CIDR targets into their addresses; anything else is
// passed through as a host name.
func ExpandTargets(targets []string) ([]string, error) {
	var out []string
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.Contains(t, "/") {
			out = append(out, t)
			continue
		}
		ips, err := expandCIDR(t)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			out = append(out, ip.String())
		}
	}
	return out, nil
}

func expandCIDR(cidr string) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse cidr %s: %w", cidr, err)
	}
	var ips []netip.Addr
	for addr := prefix.Masked().Addr(); prefix.Contains(addr); addr = addr.Next() {
		if len(ips) == maxTargets {
			return nil, fmt.Errorf("cidr %s expands to more than %d addresses", cidr, maxTargets)
		}
		ips = append(ips, addr)
		if !addr.Next().IsValid() {
			break
		}
	}
	return ips, nil
}
