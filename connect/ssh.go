package connect

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/diag"
)

// Descriptor keys that may hold the device address, in order of preference.
var addressKeys = []string{"Ip", "ip", "IP", "address", "Address", "host"}

// Descriptor keys that may hold the SSH port.
var portKeys = []string{"Port", "port"}

var osReleaseRegex = regexp.MustCompile(`^([A-Z_]+)=(.*)$`)

// DeviceAddress - The address of the device in a scan descriptor.
func DeviceAddress(device common.Document) (string, bool) {
	return device.FirstString(addressKeys...)
}

// SSHConnector - Connects to a device over SSH with password authentication and collects basic device facts.
type SSHConnector struct {
	DefaultPort uint
	DialTimeout time.Duration
	// Host key verification, defaults to accepting any key.
	HostKeyCallback ssh.HostKeyCallback
	Now             func() time.Time
}

// NewSSHConnector - Create an SSH connector from the config.
func NewSSHConnector(config common.Config) *SSHConnector {
	return &SSHConnector{
		DefaultPort: config.SSHPort,
		DialTimeout: time.Duration(config.SSHDialTimeout * float64(time.Second)),
	}
}

// Connect - Open an SSH session to the device, gather facts and close it again.
func (connector *SSHConnector) Connect(ctx context.Context, request Request, sink diag.Sink) (common.Document, error) {
	address, ok := DeviceAddress(request.Device)
	if !ok {
		sink.Print("Device descriptor has no address")
		return nil, fmt.Errorf("%w: device descriptor has no address", ErrConnectorFailure)
	}
	port := connector.DefaultPort
	if port == 0 {
		port = 22
	}
	for _, key := range portKeys {
		if devicePort, ok := request.Device.Uint(key); ok && devicePort > 0 {
			port = devicePort
			break
		}
	}
	fullAddress := net.JoinHostPort(address, strconv.FormatUint(uint64(port), 10))

	sink.Print("Connecting to device", fullAddress, "as", request.Login)
	client, err := connector.dial(ctx, fullAddress, request.Login, request.Password)
	if err != nil {
		sink.Print("Failed to connect to device", fullAddress, err)
		return nil, fmt.Errorf("%w: %v", ErrConnectorFailure, err)
	}
	defer client.Close()
	sink.Print("Connected", fullAddress, string(client.ServerVersion()))

	facts := []struct {
		key     string
		command string
	}{
		{"Hostname", "hostname"},
		{"Arch", "uname -m"},
		{"Kernel", "uname -r"},
	}
	session := request.Device.Clone()
	for _, fact := range facts {
		output, err := runSSHCommand(ctx, client, fact.command)
		if err != nil {
			sink.Print("Command failed", fact.command, err)
			return nil, fmt.Errorf("%w: %v: %v", ErrConnectorFailure, fact.command, err)
		}
		value := strings.TrimSpace(output)
		sink.Print(fact.command, value)
		if err := session.Set(fact.key, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectorFailure, err)
		}
	}

	// Not all devices have it, allow it missing
	osRelease := map[string]string{}
	if output, err := runSSHCommand(ctx, client, "cat /etc/os-release"); err != nil {
		sink.Print("No OS release info", err)
	} else {
		osRelease = parseOSRelease(output)
		sink.Print("OS release", osRelease)
	}

	now := time.Now
	if connector.Now != nil {
		now = connector.Now
	}
	extra := map[string]interface{}{
		"OsRelease":   osRelease,
		"Login":       request.Login,
		"HostIp":      request.HostIP,
		"SshAddress":  fullAddress,
		"ConnectedAt": now().UTC().Format(time.RFC3339),
	}
	for key, value := range extra {
		if err := session.Set(key, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectorFailure, err)
		}
	}

	sink.Print("Session established", fullAddress)
	return session, nil
}

func (connector *SSHConnector) dial(ctx context.Context, fullAddress string, login string, password string) (*ssh.Client, error) {
	hostKeyCallback := connector.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	sshConfig := &ssh.ClientConfig{
		User: login,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         connector.DialTimeout,
	}

	dialer := net.Dialer{Timeout: connector.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", fullAddress)
	if err != nil {
		return nil, err
	}
	if deadline, ok := handshakeDeadline(ctx, connector.DialTimeout); ok {
		conn.SetDeadline(deadline)
	}
	sshConn, channels, requests, err := ssh.NewClientConn(conn, fullAddress, sshConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, channels, requests), nil
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		timeoutDeadline := time.Now().Add(timeout)
		if !ok || timeoutDeadline.Before(deadline) {
			return timeoutDeadline, true
		}
	}
	return deadline, ok
}

// Open a new session and run a single command, returning its standard output.
func runSSHCommand(ctx context.Context, client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()
	select {
	case err := <-done:
		if err != nil {
			if message := strings.TrimSpace(stderr.String()); message != "" {
				return "", fmt.Errorf("%w: %v", err, message)
			}
			return "", err
		}
		return stdout.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func parseOSRelease(output string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		result := osReleaseRegex.FindStringSubmatch(strings.TrimSpace(line))
		if result == nil {
			continue
		}
		values[result[1]] = strings.Trim(result[2], `"'`)
	}
	return values
}
