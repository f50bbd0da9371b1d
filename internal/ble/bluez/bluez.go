// Package bluez implements ble.Peripheral on the BlueZ D-Bus API.
package bluez

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/google/uuid"

	"github.com/bbernstein/lacylights-showsync/internal/ble"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

const (
	bluezService       = "org.bluez"
	adapterIface       = "org.bluez.Adapter1"
	gattManagerIface   = "org.bluez.GattManager1"
	advManagerIface    = "org.bluez.LEAdvertisingManager1"
	gattServiceIface   = "org.bluez.GattService1"
	gattCharIface      = "org.bluez.GattCharacteristic1"
	gattDescIface      = "org.bluez.GattDescriptor1"
	advIface           = "org.bluez.LEAdvertisement1"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	propertiesIface    = "org.freedesktop.DBus.Properties"

	// Characteristic User Description.
	userDescriptionUUID = "2901"

	basePath        = dbus.ObjectPath("/com/lacylights/showsync")
	callTimeout     = 10 * time.Second
	unregisterGrace = 5 * time.Second
)

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Peripheral registers a GATT application and LE advertisement with BlueZ.
type Peripheral struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath

	mu    sync.RWMutex
	chars map[uuid.UUID]*characteristic
}

// New connects to the system bus for the named adapter (e.g. hci0).
func New(adapter string) (*Peripheral, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &Peripheral{
		conn:    conn,
		adapter: dbus.ObjectPath("/org/bluez/" + adapter),
		chars:   make(map[uuid.UUID]*characteristic),
	}, nil
}

// Close closes the bus connection.
func (p *Peripheral) Close() error {
	return p.conn.Close()
}

// Serve exports app, registers it and its advertisement with the adapter and
// blocks until ctx is done.
func (p *Peripheral) Serve(ctx context.Context, app ble.Application) error {
	l := newLayout(app)

	chars := make(map[uuid.UUID]*characteristic, len(app.Characteristics))
	for i, def := range app.Characteristics {
		c := &characteristic{def: def, ctx: ctx}
		if err := p.conn.Export(c, l.chars[i], gattCharIface); err != nil {
			return fmt.Errorf("export characteristic %s: %w", def.UUID, err)
		}
		props, err := prop.Export(p.conn, l.chars[i], propMap(gattCharIface, l.objects[l.chars[i]][gattCharIface], "Value"))
		if err != nil {
			return fmt.Errorf("export characteristic properties: %w", err)
		}
		c.props = props
		chars[def.UUID] = c

		if def.Description != "" {
			d := &descriptor{value: []byte(def.Description)}
			if err := p.conn.Export(d, l.descs[i], gattDescIface); err != nil {
				return fmt.Errorf("export descriptor: %w", err)
			}
			if _, err := prop.Export(p.conn, l.descs[i], propMap(gattDescIface, l.objects[l.descs[i]][gattDescIface], "")); err != nil {
				return fmt.Errorf("export descriptor properties: %w", err)
			}
		}
	}
	if _, err := prop.Export(p.conn, l.service, propMap(gattServiceIface, l.objects[l.service][gattServiceIface], "")); err != nil {
		return fmt.Errorf("export service properties: %w", err)
	}
	if err := p.conn.Export(&application{objects: l.objects}, basePath, objectManagerIface); err != nil {
		return fmt.Errorf("export application: %w", err)
	}
	if err := p.conn.Export(advertisement{}, l.advertisement, advIface); err != nil {
		return fmt.Errorf("export advertisement: %w", err)
	}
	if _, err := prop.Export(p.conn, l.advertisement, propMap(advIface, advertisementProps(app), "")); err != nil {
		return fmt.Errorf("export advertisement properties: %w", err)
	}
	defer p.unexport(l)

	p.mu.Lock()
	p.chars = chars
	p.mu.Unlock()

	adapter := p.conn.Object(bluezService, p.adapter)
	if err := call(ctx, adapter, propertiesIface+".Set", adapterIface, "Powered", dbus.MakeVariant(true)); err != nil {
		log.Printf("Warning: could not power on %s: %v", p.adapter, err)
	}
	if err := call(ctx, adapter, gattManagerIface+".RegisterApplication", basePath, map[string]dbus.Variant{}); err != nil {
		return fmt.Errorf("register GATT application on %s: %w", p.adapter, err)
	}
	if err := call(ctx, adapter, advManagerIface+".RegisterAdvertisement", l.advertisement, map[string]dbus.Variant{}); err != nil {
		log.Printf("Warning: BLE advertisement not registered: %v", err)
	}
	log.Printf("📶 BLE service %s registered on %s as %q", app.ServiceUUID, p.adapter, app.LocalName)

	<-ctx.Done()

	unregisterCtx, cancel := context.WithTimeout(context.Background(), unregisterGrace)
	defer cancel()
	_ = call(unregisterCtx, adapter, advManagerIface+".UnregisterAdvertisement", l.advertisement)
	if err := call(unregisterCtx, adapter, gattManagerIface+".UnregisterApplication", basePath); err != nil {
		log.Printf("Warning: failed to unregister GATT application: %v", err)
	}
	log.Println("✅ BLE service unregistered")
	return nil
}

// Notify updates the characteristic value, which BlueZ turns into a
// notification or indication for subscribed clients.
func (p *Peripheral) Notify(char uuid.UUID, value []byte) error {
	p.mu.RLock()
	c, ok := p.chars[char]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("characteristic %s not registered", char)
	}
	if !c.notifying.Load() {
		return nil
	}
	if err := c.props.Set(gattCharIface, "Value", dbus.MakeVariant(value)); err != nil {
		return err
	}
	return nil
}

func (p *Peripheral) unexport(l layout) {
	p.mu.Lock()
	p.chars = make(map[uuid.UUID]*characteristic)
	p.mu.Unlock()

	for path, ifaces := range l.objects {
		for iface := range ifaces {
			_ = p.conn.Export(nil, path, iface)
		}
		_ = p.conn.Export(nil, path, propertiesIface)
	}
	_ = p.conn.Export(nil, basePath, objectManagerIface)
	_ = p.conn.Export(nil, l.advertisement, advIface)
	_ = p.conn.Export(nil, l.advertisement, propertiesIface)
}

func call(ctx context.Context, obj dbus.BusObject, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return obj.CallWithContext(ctx, method, 0, args...).Err
}

// layout assigns object paths and GATT properties to an application.
type layout struct {
	service       dbus.ObjectPath
	chars         []dbus.ObjectPath
	descs         []dbus.ObjectPath
	advertisement dbus.ObjectPath
	objects       managedObjects
}

func newLayout(app ble.Application) layout {
	l := layout{
		service:       basePath + "/service0",
		advertisement: basePath + "/advertisement0",
		objects:       make(managedObjects),
	}

	charPaths := make([]dbus.ObjectPath, 0, len(app.Characteristics))
	for i, def := range app.Characteristics {
		path := dbus.ObjectPath(fmt.Sprintf("%s/char%d", l.service, i))
		descPath := path + "/desc0"
		charPaths = append(charPaths, path)
		l.chars = append(l.chars, path)
		l.descs = append(l.descs, descPath)

		descriptors := []dbus.ObjectPath{}
		if def.Description != "" {
			descriptors = append(descriptors, descPath)
			l.objects[descPath] = map[string]map[string]dbus.Variant{
				gattDescIface: {
					"Characteristic": dbus.MakeVariant(path),
					"UUID":           dbus.MakeVariant(userDescriptionUUID),
					"Flags":          dbus.MakeVariant([]string{"read"}),
				},
			}
		}
		l.objects[path] = map[string]map[string]dbus.Variant{
			gattCharIface: {
				"Service":     dbus.MakeVariant(l.service),
				"UUID":        dbus.MakeVariant(def.UUID.String()),
				"Flags":       dbus.MakeVariant(def.Flags),
				"Descriptors": dbus.MakeVariant(descriptors),
				"Value":       dbus.MakeVariant([]byte{}),
			},
		}
	}
	l.objects[l.service] = map[string]map[string]dbus.Variant{
		gattServiceIface: {
			"UUID":            dbus.MakeVariant(app.ServiceUUID.String()),
			"Primary":         dbus.MakeVariant(true),
			"Characteristics": dbus.MakeVariant(charPaths),
		},
	}
	return l
}

func advertisementProps(app ble.Application) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Type":         dbus.MakeVariant("peripheral"),
		"ServiceUUIDs": dbus.MakeVariant([]string{app.ServiceUUID.String()}),
		"LocalName":    dbus.MakeVariant(app.LocalName),
	}
}

// propMap turns static properties into a prop.Map. The emitting property
// (if any) sends PropertiesChanged with its new value.
func propMap(iface string, values map[string]dbus.Variant, emitting string) prop.Map {
	props := make(map[string]*prop.Prop, len(values))
	for name, v := range values {
		emit := prop.EmitFalse
		if name == emitting {
			emit = prop.EmitTrue
		}
		props[name] = &prop.Prop{Value: v.Value(), Emit: emit}
	}
	return prop.Map{iface: props}
}

type application struct {
	objects managedObjects
}

func (a *application) GetManagedObjects() (managedObjects, *dbus.Error) {
	return a.objects, nil
}

type advertisement struct{}

func (advertisement) Release() *dbus.Error {
	log.Println("📶 BLE advertisement released by BlueZ")
	return nil
}

type characteristic struct {
	def       ble.Characteristic
	ctx       context.Context
	props     *prop.Properties
	notifying atomic.Bool
}

func (c *characteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	if c.def.OnRead == nil {
		return nil, dbus.NewError("org.bluez.Error.NotSupported", nil)
	}
	value, err := c.def.OnRead(c.ctx, requestFrom(options))
	if err != nil {
		return nil, dbusError(err)
	}
	if off := offsetFrom(options); off > 0 {
		if off > len(value) {
			return nil, dbus.NewError("org.bluez.Error.InvalidOffset", nil)
		}
		value = value[off:]
	}
	return value, nil
}

func (c *characteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	if c.def.OnWrite == nil {
		return dbus.NewError("org.bluez.Error.NotSupported", nil)
	}
	if err := c.def.OnWrite(c.ctx, requestFrom(options), value); err != nil {
		log.Printf("Warning: BLE write to %s rejected: %v", c.def.UUID, err)
		return dbusError(err)
	}
	return nil
}

func (c *characteristic) StartNotify() *dbus.Error {
	c.notifying.Store(true)
	return nil
}

func (c *characteristic) StopNotify() *dbus.Error {
	c.notifying.Store(false)
	return nil
}

type descriptor struct {
	value []byte
}

func (d *descriptor) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	off := offsetFrom(options)
	if off > len(d.value) {
		return nil, dbus.NewError("org.bluez.Error.InvalidOffset", nil)
	}
	return d.value[off:], nil
}

func requestFrom(options map[string]dbus.Variant) ble.Request {
	var req ble.Request
	if v, ok := options["device"]; ok {
		if path, ok := v.Value().(dbus.ObjectPath); ok {
			req.Client = string(path)
		}
	}
	if v, ok := options["mtu"]; ok {
		if mtu, ok := v.Value().(uint16); ok {
			req.MTU = int(mtu)
		}
	}
	return req
}

func offsetFrom(options map[string]dbus.Variant) int {
	if v, ok := options["offset"]; ok {
		if off, ok := v.Value().(uint16); ok {
			return int(off)
		}
	}
	return 0
}

// dbusError maps an error onto the BlueZ error names that become ATT errors.
func dbusError(err error) *dbus.Error {
	name := "org.bluez.Error.Failed"
	switch showerr.KindOf(err) {
	case showerr.KindEncoding:
		name = "org.bluez.Error.InvalidValueLength"
	case showerr.KindInvalidState, showerr.KindIndex:
		name = "org.bluez.Error.NotPermitted"
	}
	return dbus.NewError(name, []interface{}{strings.TrimSpace(err.Error())})
}
