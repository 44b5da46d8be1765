package responder

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbusdns/beacon/internal/clock"
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/records"
	"github.com/nimbusdns/beacon/internal/repository"
	"github.com/nimbusdns/beacon/internal/security"
	"github.com/nimbusdns/beacon/internal/state"
	"github.com/nimbusdns/beacon/internal/transport"
)

// Responder manages mDNS service registration and response per RFC 6762.
//
// T035: Responder struct
// T080: Added query handler goroutine support
type Responder struct {
	ctx              context.Context
	transport        transport.Transport
	hostname         string
	injectConflict   bool          // Test hook: inject conflict during probing
	queryHandlerDone chan struct{} // Signal query handler shutdown

	// US2 GREEN: Store last machine for message capture (contract test support)
	lastMachine *state.Machine // Last state machine used for registration

	// US2 GREEN: Store callbacks for applying to new machines
	onProbeCallback    func() // Callback for probe events
	onAnnounceCallback func() // Callback for announce events

	// US2 GREEN: Store last announced records for contract test validation
	lastAnnouncedRecords []*ResourceRecord // Last record set announced

	// repo is the Record Repository backing real probe/announce/reply
	// packet construction and conflict detection. repoMu serializes access
	// since Register/Unregister/the query handler goroutine may all touch
	// it concurrently (the repository itself assumes a single caller).
	repo   *repository.Repository
	repoMu sync.Mutex

	// serviceIDs maps an instance name to its repository id, so Unregister
	// can look up the registration to exit/remove.
	serviceIDs map[string]int32
	nextID     int32

	// probeConflicts records repository ids the query handler has observed
	// a conflicting record for while they are still probing.
	probeConflicts map[int32]bool

	multicastAddr net.Addr // 224.0.0.251:5353

	rateLimiter  *security.RateLimiter
	sourceFilter *security.SourceFilter
	logger       zerolog.Logger
}

// New creates a new mDNS responder.
//
// T036: Responder.New() implementation
// T080: Start query handler goroutine
func New(ctx context.Context, opts ...Option) (*Responder, error) {
	// Get system hostname if not provided
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	hostname = hostname + ".local"

	// Create transport
	t, err := transport.NewUDPv4Transport()
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	multicastAddr, err := net.ResolveUDPAddr("udp4", "224.0.0.251:5353")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve multicast address: %w", err)
	}

	r := &Responder{
		ctx:              ctx,
		transport:        t,
		hostname:         hostname,
		queryHandlerDone: make(chan struct{}),
		repo:             repository.New(clock.System{}),
		serviceIDs:       make(map[string]int32),
		probeConflicts:   make(map[int32]bool),
		multicastAddr:    multicastAddr,
		logger:           zerolog.Nop(),
	}

	if iface, ierr := firstMulticastInterface(); ierr == nil {
		r.sourceFilter, _ = security.NewSourceFilter(*iface) // nosemgrep: beacon-error-swallowing
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Start query handler goroutine (T080)
	go r.runQueryHandler()

	return r, nil
}

// nextServiceID returns the next repository id to use. Callers must already
// hold repoMu.
func (r *Responder) nextServiceID() int32 {
	r.nextID++
	return r.nextID
}

// firstMulticastInterface returns the first usable multicast-capable
// network interface, for constructing the default source filter.
func firstMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		return &iface, nil
	}
	return nil, fmt.Errorf("no multicast-capable interface found")
}

// maxRenameAttempts is the maximum number of times to rename a service on conflict.
//
// RFC 6762 §9: No explicit limit specified, but we use 10 as a reasonable maximum
// to prevent infinite loops and resource exhaustion.
//
// FR-032: System MUST handle registration failures gracefully
const maxRenameAttempts = 10

// Register registers a service with probing and announcing per RFC 6762 §8.
//
// Process:
//  1. Validate service parameters
//  2. Attempt to register (with rename loop on conflict)
//  3. Build record set (PTR, SRV, TXT, A)
//  4. Run state machine (Probing → Announcing → Established)
//  5. Keep the repository entry on success; remove it on failure or conflict
//
// RFC 6762 §8: Total time ~1.5s (500ms probing + 1s announcing)
// RFC 6762 §9: If conflict detected, rename and retry (max 10 attempts)
//
// Returns:
//   - error: validation error, conflict error, max attempts error, or context error
//
// T041: Full Register() implementation
// T062: Add max rename attempts limit (GREEN phase)
func (r *Responder) Register(service *Service) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}

	// Validate service parameters
	if err := service.Validate(); err != nil {
		return err
	}

	// Set hostname if not provided
	if service.Hostname == "" {
		service.Hostname = r.hostname
	}

	// Get local IPv4 address (simplified - use first non-loopback)
	ipv4, err := getLocalIPv4()
	if err != nil {
		return fmt.Errorf("failed to get local IPv4: %w", err)
	}

	// RFC 6762 §9: Rename loop on conflict (max 10 attempts)
	// Attempt probing up to maxRenameAttempts times
	for attempt := 1; attempt <= maxRenameAttempts; attempt++ {
		// Build record set for this service (with current name)
		serviceInfo := &records.ServiceInfo{
			InstanceName: service.InstanceName,
			ServiceType:  service.ServiceType,
			Hostname:     service.Hostname,
			Port:         service.Port,
			IPv4Address:  ipv4,
			TXTRecords:   service.TXTRecords,
		}
		recordSet := records.BuildRecordSet(serviceInfo)

		// US2 GREEN: Store record set for contract test validation
		r.lastAnnouncedRecords = recordSet

		// Register with the Record Repository and fetch the real,
		// spec-compliant probe packet (question + tentative authority).
		r.repoMu.Lock()
		id := r.nextServiceID()
		if _, aerr := r.repo.AddService(id, *serviceInfo, 0); aerr != nil {
			r.repoMu.Unlock()
			return fmt.Errorf("repository: add service: %w", aerr)
		}
		probingInfo, perr := r.repo.SetServiceProbing(id)
		r.probeConflicts[id] = false
		r.repoMu.Unlock()
		if perr != nil {
			return fmt.Errorf("repository: set service probing: %w", perr)
		}

		// Create and run state machine
		machine := state.NewMachine()
		serviceName := service.InstanceName + "." + service.ServiceType

		// Apply test hooks (if any)
		if r.injectConflict {
			machine.SetInjectConflict(true)
		}

		// US2 GREEN: Store machine for message capture (contract test support)
		r.lastMachine = machine

		// US2 GREEN: Apply callbacks to new machine (if any)
		if r.onProbeCallback != nil {
			prober := machine.GetProber()
			if prober != nil {
				prober.SetOnSendQuery(r.onProbeCallback)
			}
		}
		if r.onAnnounceCallback != nil {
			announcer := machine.GetAnnouncer()
			if announcer != nil {
				announcer.SetOnSendAnnouncement(r.onAnnounceCallback)
			}
		}

		// Wire the prober to send the repository's real probe packet over
		// the wire, and to learn about conflicts the query handler observes
		// on the real receive path.
		prober := machine.GetProber()
		prober.SetRealProbePacket(probingInfo.Packet)
		prober.SetTransport(r.transport, r.multicastAddr)
		prober.SetConflictCheck(func() bool {
			r.repoMu.Lock()
			defer r.repoMu.Unlock()
			return r.probeConflicts[id]
		})

		// Provide resource records to announcer for DNS message serialization
		announcer := machine.GetAnnouncer()
		announcer.SetRecords(recordSet)
		announcer.SetTransport(r.transport, r.multicastAddr)
		announcer.SetOnSent(func(count int) {
			r.repoMu.Lock()
			defer r.repoMu.Unlock()
			if oerr := r.repo.OnAdvertisementSent(id, count); oerr != nil {
				r.logger.Warn().Err(oerr).Int32("service_id", id).Msg("repository: onAdvertisementSent failed")
			}
		})

		// Once probing succeeds, fetch the real announcement packet before
		// the announcer sends anything.
		machine.SetOnProbeSucceeded(func() []byte {
			r.repoMu.Lock()
			defer r.repoMu.Unlock()
			annInfo, oerr := r.repo.OnProbingSucceeded(probingInfo)
			if oerr != nil {
				r.logger.Warn().Err(oerr).Int32("service_id", id).Msg("repository: onProbingSucceeded failed")
				return nil
			}
			return annInfo.Packet
		})

		// Run state machine (probing + announcing)
		err = machine.Run(r.ctx, serviceName)
		if err != nil {
			r.repoMu.Lock()
			_ = r.repo.RemoveService(id)
			delete(r.probeConflicts, id)
			r.repoMu.Unlock()
			return fmt.Errorf("state machine failed: %w", err)
		}

		// Check final state
		finalState := machine.GetState()

		if finalState == state.StateConflictDetected {
			// Conflict detected - the repository registration for this
			// attempt's name never reached ANNOUNCING, so drop it before
			// retrying under a new name.
			r.repoMu.Lock()
			_ = r.repo.RemoveService(id)
			delete(r.probeConflicts, id)
			r.repoMu.Unlock()

			// Rename and retry (unless max attempts reached)
			if attempt >= maxRenameAttempts {
				// Max attempts exceeded - give up
				return fmt.Errorf("max rename attempts (%d) exceeded for service %q",
					maxRenameAttempts, service.InstanceName)
			}

			// Rename service and try again
			service.Rename() // Appends "-2", "-3", etc.
			continue         // Retry with new name
		}

		if finalState != state.StateEstablished {
			// This is NOT wrapping an error - finalState is state.State (int), not error type.
			// Using %v here is correct for formatting the state value.
			return fmt.Errorf("unexpected final state: %v", finalState) // nosemgrep: beacon-error-wrap-percent-v
		}

		// Success! The repository (indexed by serviceIDs) is already the
		// authoritative record of this registration; just publish the index.
		r.repoMu.Lock()
		r.serviceIDs[service.InstanceName] = id
		delete(r.probeConflicts, id)
		r.repoMu.Unlock()

		return nil // Successfully registered
	}

	// Should never reach here (loop returns on success or max attempts)
	return fmt.Errorf("unexpected: register loop completed without result")
}

// Unregister unregisters a service and sends goodbye packets per RFC 6762 §10.1.
//
// RFC 6762 §10.1: "A host may send unsolicited responses with TTL=0 to announce
// the departure of a record."
//
// Process:
//  1. Ask the Record Repository to exit the service (goodbye packet template)
//  2. Send the goodbye packet, if any, to the multicast group
//  3. Remove from the repository and release the service id
//
// Returns:
//   - error: if service not found
//
// T042: Implement Unregister() with goodbye packets
func (r *Responder) Unregister(serviceID string) error {
	// Lookup service to get instance name (handles both full ID and instance name)
	svc, found := r.GetService(serviceID)
	if !found {
		return fmt.Errorf("service %q not registered", serviceID)
	}

	r.repoMu.Lock()
	id, hasID := r.serviceIDs[svc.InstanceName]
	var goodbye *repository.AnnouncementInfo
	var err error
	if hasID {
		goodbye, err = r.repo.ExitService(id)
	}
	r.repoMu.Unlock()
	if err != nil {
		return fmt.Errorf("repository: exit service: %w", err)
	}

	if goodbye != nil {
		if serr := r.transport.Send(r.ctx, goodbye.Packet, r.multicastAddr); serr != nil {
			r.logger.Warn().Err(serr).Str("instance", svc.InstanceName).Msg("responder: send goodbye failed")
		}
	}

	r.repoMu.Lock()
	defer r.repoMu.Unlock()
	if !hasID {
		return fmt.Errorf("service %q not registered", serviceID)
	}
	_ = r.repo.RemoveService(id)
	delete(r.serviceIDs, svc.InstanceName)
	delete(r.probeConflicts, id)

	return nil
}

// Close closes the responder and unregisters all services per FR-015.
//
// Process:
//  1. Stop query handler goroutine
//  2. Unregister all services (sends goodbye packets)
//  3. Close transport
//
// Returns:
//   - error: transport close error
//
// T043: Implement Close()
// T080: Stop query handler
func (r *Responder) Close() error {
	// Stop query handler goroutine (T080)
	close(r.queryHandlerDone)

	// Unregister all services (sends goodbye packets)
	r.repoMu.Lock()
	instanceNames := make([]string, 0, len(r.serviceIDs))
	for name := range r.serviceIDs {
		instanceNames = append(instanceNames, name)
	}
	r.repoMu.Unlock()
	for _, instanceName := range instanceNames {
		// Ignore errors - service may have been manually unregistered
		_ = r.Unregister(instanceName)
	}

	// Close transport
	if r.transport != nil {
		return r.transport.Close()
	}
	return nil
}

// getLocalIPv4 gets the first non-loopback IPv4 address.
//
// Returns:
//   - []byte: IPv4 address (4 bytes)
//   - error: if no suitable address found
func getLocalIPv4() ([]byte, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return ipv4, nil
			}
		}
	}

	return nil, fmt.Errorf("no non-loopback IPv4 address found")
}

// OnProbe sets a callback to be called when a probe is sent.
//
// US2 GREEN: Contract test support for RFC 6762 §8.1 validation
func (r *Responder) OnProbe(callback func()) {
	// Store callback for future machines
	r.onProbeCallback = callback

	// Also apply to current machine if it exists
	if r.lastMachine != nil {
		prober := r.lastMachine.GetProber()
		if prober != nil {
			prober.SetOnSendQuery(callback)
		}
	}
}

// OnAnnounce sets a callback to be called when an announcement is sent.
//
// US2 GREEN: Contract test support for RFC 6762 §8.3 validation
func (r *Responder) OnAnnounce(callback func()) {
	// Store callback for future machines
	r.onAnnounceCallback = callback

	// Also apply to current machine if it exists
	if r.lastMachine != nil {
		announcer := r.lastMachine.GetAnnouncer()
		if announcer != nil {
			announcer.SetOnSendAnnouncement(callback)
		}
	}
}

// GetLastProbeMessage returns the last sent probe message.
//
// US2 GREEN: Contract test support for RFC 6762 §8.1 validation
func (r *Responder) GetLastProbeMessage() []byte {
	if r.lastMachine != nil {
		prober := r.lastMachine.GetProber()
		if prober != nil {
			return prober.GetLastProbeMessage()
		}
	}
	return nil
}

// GetLastAnnounceMessage returns the last sent announcement message.
//
// US2 GREEN: Contract test support for RFC 6762 §8.3 validation
func (r *Responder) GetLastAnnounceMessage() []byte {
	if r.lastMachine != nil {
		announcer := r.lastMachine.GetAnnouncer()
		if announcer != nil {
			return announcer.GetLastAnnounceMessage()
		}
	}
	return nil
}

// GetLastAnnouncedRecords returns the last announced record set.
//
// US2 GREEN: Contract test support for RFC 6762 §8.3 and RFC 6763 §6 validation
func (r *Responder) GetLastAnnouncedRecords() []*ResourceRecord {
	return r.lastAnnouncedRecords
}

// GetLastAnnounceDest returns the last announcement destination address.
//
// US2 GREEN: Contract test support for RFC 6762 §5 multicast address validation
func (r *Responder) GetLastAnnounceDest() string {
	if r.lastMachine != nil {
		announcer := r.lastMachine.GetAnnouncer()
		if announcer != nil {
			return announcer.GetLastDestAddr()
		}
	}
	return ""
}

// GetService retrieves a registered service by service ID.
//
// The serviceID can be either:
//   - Full service ID: "Instance Name._service._proto.local"
//   - Just instance name: "Instance Name" (backward compatibility)
//
// Returns:
//   - *Service: The service if found
//   - bool: true if service exists, false otherwise
//
// T100: Implement GetService for multi-service support (US5 GREEN)
func (r *Responder) GetService(serviceID string) (*Service, bool) {
	id, found := r.lookupServiceID(serviceID)
	if !found {
		return nil, false
	}

	r.repoMu.Lock()
	info, ok := r.repo.GetServiceInfo(id)
	r.repoMu.Unlock()
	if !ok {
		return nil, false
	}
	return serviceFromInfo(info), true
}

// serviceFromInfo projects the repository's internal ServiceInfo into the
// public Service view GetService returns.
func serviceFromInfo(info records.ServiceInfo) *Service {
	return &Service{
		InstanceName: info.InstanceName,
		ServiceType:  info.ServiceType,
		Port:         info.Port,
		TXTRecords:   info.TXTRecords,
		Hostname:     info.Hostname,
	}
}

// UpdateService updates a registered service's TXT records without re-probing.
//
// Per RFC 6762 §8.4, updating TXT records does NOT require re-probing since:
// - The service instance name hasn't changed (no conflict possible)
// - TXT records are metadata, not part of the unique service identity
//
// Process:
//  1. Find service's repository id
//  2. Replace its TXT records and rebuild the announcement packet
//  3. Multicast the new announcement so listeners pick up the change
//
// Parameters:
//   - serviceID: Service identifier (InstanceName or InstanceName.ServiceType)
//   - txtRecords: New TXT records to set
//
// Returns:
//   - error: If service not found or update fails
//
// T106: Implement UpdateService without re-probing (US5 GREEN)
func (r *Responder) UpdateService(serviceID string, txtRecords []records.TXTEntry) error {
	id, found := r.lookupServiceID(serviceID)
	if !found {
		return fmt.Errorf("service %q not found", serviceID)
	}

	r.repoMu.Lock()
	ann, err := r.repo.UpdateServiceTXT(id, txtRecords)
	r.repoMu.Unlock()
	if err != nil {
		return fmt.Errorf("repository: update service TXT: %w", err)
	}

	if serr := r.transport.Send(r.ctx, ann.Packet, r.multicastAddr); serr != nil {
		r.logger.Warn().Err(serr).Str("service", serviceID).Msg("responder: send TXT update announcement failed")
	}

	return nil
}

// UpdateServiceSubtypes replaces the DNS-SD subtype set of an already
// registered service (spec §4.2's updateService(id, subtypes)). Like TXT
// updates, this requires no re-probing: the instance name is unchanged, so
// no conflict is possible.
func (r *Responder) UpdateServiceSubtypes(serviceID string, subtypes []string) error {
	id, found := r.lookupServiceID(serviceID)
	if !found {
		return fmt.Errorf("service %q not found", serviceID)
	}

	r.repoMu.Lock()
	defer r.repoMu.Unlock()
	if err := r.repo.UpdateService(id, subtypes); err != nil {
		return fmt.Errorf("repository: update service subtypes: %w", err)
	}
	return nil
}

// lookupServiceID resolves serviceID (InstanceName or full
// InstanceName.ServiceType) to its repository id.
func (r *Responder) lookupServiceID(serviceID string) (int32, bool) {
	r.repoMu.Lock()
	defer r.repoMu.Unlock()

	if id, ok := r.serviceIDs[serviceID]; ok {
		return id, true
	}
	for instanceName, id := range r.serviceIDs {
		info, ok := r.repo.GetServiceInfo(id)
		if !ok {
			continue
		}
		if instanceName+"."+info.ServiceType == serviceID {
			return id, true
		}
	}
	return 0, false
}

// InjectConflictDuringProbing is a test hook to inject conflicts during probing.
//
// When enabled, the state machine will always report StateConflictDetected,
// forcing the rename loop to trigger.
//
// T062: Test hook for max rename attempts testing
func (r *Responder) InjectConflictDuringProbing(inject bool) {
	r.injectConflict = inject
}

// InjectSimultaneousProbe is a test hook for injecting simultaneous probe scenarios.
//
// This method is currently a stub placeholder for future simultaneous probe testing
// per RFC 6762 §8.2 tiebreaking. It will be implemented when detailed conflict
// resolution testing is added.
//
// Parameters:
//   - First parameter: Our probe packet (currently unused)
//   - Second parameter: Incoming probe packet (currently unused)
//
// T062: Test hook infrastructure for conflict scenarios
func (r *Responder) InjectSimultaneousProbe([]byte, []byte) {}

// ResourceRecord is a type alias for records.ResourceRecord.
//
// This alias allows contract tests to reference ResourceRecord without importing
// the internal records package directly, maintaining clean architecture boundaries.
//
// The underlying type contains DNS resource record fields:
//   - Name: Domain name (e.g., "myservice._http._tcp.local")
//   - Type: Record type (A, PTR, SRV, TXT per RFC 1035)
//   - Class: Record class (IN for Internet)
//   - TTL: Time-to-live in seconds
//   - Data: Record-specific data (IP address, target name, etc.)
//   - CacheFlush: Cache-flush bit per RFC 6762 §10.2
//
// US2 GREEN: Contract test support for validating resource records
type ResourceRecord = records.ResourceRecord

// runQueryHandler continuously receives and processes mDNS queries.
//
// RFC 6762 §6: Responders SHOULD respond to queries for services they have registered.
//
// Process:
//  1. Receive query packet from transport
//  2. Parse DNS message
//  3. For each question, check if we have matching service
//  4. Build response (PTR answer + SRV/TXT/A additional)
//  5. Apply rate limiting per RFC 6762 §6.2
//  6. Send response (unicast or multicast based on QU bit)
//
// T080: Query handler goroutine
func (r *Responder) runQueryHandler() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.queryHandlerDone:
			return
		default:
			// Receive query with timeout
			packet, srcAddr, err := r.transport.Receive(r.ctx)
			if err != nil {
				// Context cancelled or transport closed
				select {
				case <-r.ctx.Done():
					return
				case <-r.queryHandlerDone:
					return
				default:
					// Other error - continue receiving
					continue
				}
			}

			// Handle query (T079)
			if herr := r.handleQuery(packet, srcAddr); herr != nil {
				r.logger.Debug().Err(herr).Msg("responder: dropped inbound packet")
			}
		}
	}
}

// handleQuery processes a single inbound mDNS packet: either a query to
// answer via the Record Repository, or a response/probe carrying records
// that might conflict with one of ours.
//
// RFC 6762 §6: "When a Multicast DNS responder receives a query, it must
// determine whether the query is requesting information for which this
// responder is authoritative."
//
// Process:
//  1. Parse the packet; malformed packets are dropped (RFC 6762 §6)
//  2. Apply source filtering and per-source rate limiting
//  3. Feed it to getConflictingServices, regardless of query/response, so
//     probes we're defending see conflicting answers from other hosts
//  4. If it is a query, ask the repository for the reply (known-answer
//     suppression, throttling, and unicast/multicast destination already
//     applied) and send it
//
// Returns:
//   - error: parse error (logged by the caller, never propagated further)
//
// T079: Implement handleQuery()
func (r *Responder) handleQuery(packet []byte, srcAddr net.Addr) error {
	msg, err := message.ParseMessage(packet)
	if err != nil {
		// Malformed query - ignore per RFC 6762 §6
		return err
	}

	srcIP, srcIsIPv6 := splitSourceAddr(srcAddr)
	if r.sourceFilter != nil && srcIP != nil && !r.sourceFilter.IsValid(srcIP) {
		return nil
	}
	if r.rateLimiter != nil && srcIP != nil && !r.rateLimiter.Allow(srcIP.String()) {
		return nil
	}

	r.repoMu.Lock()
	for id := range r.repo.GetConflictingServices(msg) {
		r.probeConflicts[id] = true
	}
	r.repoMu.Unlock()

	// Responses only feed conflict detection above; they carry no questions
	// for us to answer.
	if msg.Header.IsResponse() {
		return nil
	}

	r.repoMu.Lock()
	reply, err := r.repo.GetReply(msg, srcAddr.String(), srcIsIPv6)
	r.repoMu.Unlock()
	if err != nil || reply == nil {
		return err
	}

	dest := net.Addr(r.multicastAddr)
	if reply.Unicast {
		if udpAddr, rerr := net.ResolveUDPAddr("udp4", reply.Destination); rerr == nil {
			dest = udpAddr
		}
	}

	send := func() {
		if serr := r.transport.Send(r.ctx, reply.Packet, dest); serr != nil {
			r.logger.Debug().Err(serr).Msg("responder: send reply failed")
		}
	}

	if reply.Delay > 0 {
		// §4.2 step 5: shared-name (PTR) answers carry a randomized delay.
		// Fire-and-forget off the receive loop so later packets keep flowing.
		go func() {
			timer := time.NewTimer(reply.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
				send()
			case <-r.ctx.Done():
			}
		}()
		return nil
	}

	send()
	return nil
}

// splitSourceAddr extracts the source IP (for filtering/rate limiting) and
// whether it is IPv6, from the net.Addr the transport hands back.
func splitSourceAddr(addr net.Addr) (net.IP, bool) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, false
	}
	return udpAddr.IP, udpAddr.IP.To4() == nil
}
