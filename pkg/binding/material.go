package binding

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// metal holds the complex refractive index of a tabulated metal at the RGB
// wavelengths.
type metal struct {
	name string
	eta  mgl32.Vec3
	k    mgl32.Vec3
}

var metals = [...]metal{
	protocol.MetalAluminium: {"aluminium", mgl32.Vec3{1.5, 0.98, 0.6}, mgl32.Vec3{7.6, 6.6, 5.4}},
	protocol.MetalChromium:  {"chromium", mgl32.Vec3{3.2, 3.1, 2.3}, mgl32.Vec3{3.3, 3.3, 3.1}},
	protocol.MetalCopper:    {"copper", mgl32.Vec3{0.1, 0.8, 1.1}, mgl32.Vec3{3.5, 2.5, 2.4}},
	protocol.MetalGold:      {"gold", mgl32.Vec3{0.07, 0.37, 1.5}, mgl32.Vec3{3.7, 2.3, 1.7}},
	protocol.MetalSilver:    {"silver", mgl32.Vec3{0.051, 0.043, 0.041}, mgl32.Vec3{5.3, 3.6, 2.3}},
}

// material is a named client material and the handle built for it.
type material struct {
	typ      protocol.MaterialType
	body     protocol.MaterialBody
	renderer string
	handle   device.Object
}

// materialParams maps a material body onto device parameters.
func materialParams(body protocol.MaterialBody) (map[string]any, error) {
	switch m := body.(type) {
	case *protocol.OBJMaterialSettings:
		return map[string]any{
			"kd": mgl32.Vec3(m.Kd),
			"ks": mgl32.Vec3(m.Ks),
			"ns": m.Ns,
			"d":  m.D,
		}, nil
	case *protocol.PrincipledSettings:
		return map[string]any{
			"baseColor":         mgl32.Vec3(m.BaseColor),
			"edgeColor":         mgl32.Vec3(m.EdgeColor),
			"metallic":          m.Metallic,
			"diffuse":           m.Diffuse,
			"specular":          m.Specular,
			"ior":               m.IOR,
			"transmission":      m.Transmission,
			"transmissionColor": mgl32.Vec3(m.TransmissionColor),
			"transmissionDepth": m.TransmissionDepth,
			"roughness":         m.Roughness,
			"anisotropy":        m.Anisotropy,
			"rotation":          m.Rotation,
			"thin":              m.Thin,
			"thickness":         m.Thickness,
			"backlight":         m.Backlight,
			"coat":              m.Coat,
			"coatIor":           m.CoatIOR,
			"coatColor":         mgl32.Vec3(m.CoatColor),
			"coatThickness":     m.CoatThickness,
			"coatRoughness":     m.CoatRoughness,
			"sheen":             m.Sheen,
			"sheenColor":        mgl32.Vec3(m.SheenColor),
			"sheenTint":         m.SheenTint,
			"sheenRoughness":    m.SheenRoughness,
			"opacity":           m.Opacity,
		}, nil
	case *protocol.GlassSettings:
		return map[string]any{
			"eta":                 m.Eta,
			"attenuationColor":    mgl32.Vec3(m.AttenuationColor),
			"attenuationDistance": m.AttenuationDistance,
		}, nil
	case *protocol.ThinGlassSettings:
		return map[string]any{
			"eta":                 m.Eta,
			"attenuationColor":    mgl32.Vec3(m.AttenuationColor),
			"attenuationDistance": m.AttenuationDistance,
			"thickness":           m.Thickness,
		}, nil
	case *protocol.MetalSettings:
		if int(m.Metal) >= len(metals) {
			return nil, blerrors.New("B608").WithDetailf("unknown metal %d", m.Metal)
		}
		mt := metals[m.Metal]
		return map[string]any{
			"eta":       mt.eta,
			"k":         mt.k,
			"roughness": m.Roughness,
		}, nil
	case *protocol.MetallicPaintSettings:
		return map[string]any{
			"baseColor":   mgl32.Vec3(m.BaseColor),
			"flakeAmount": m.FlakeAmount,
			"flakeColor":  mgl32.Vec3(m.FlakeColor),
			"flakeSpread": m.FlakeSpread,
			"eta":         m.Eta,
		}, nil
	case *protocol.AlloySettings:
		return map[string]any{
			"color":     mgl32.Vec3(m.Color),
			"edgeColor": mgl32.Vec3(m.EdgeColor),
			"roughness": m.Roughness,
		}, nil
	case *protocol.CarPaintSettings:
		return map[string]any{
			"baseColor":       mgl32.Vec3(m.BaseColor),
			"roughness":       m.Roughness,
			"flakeDensity":    m.FlakeDensity,
			"flakeScale":      m.FlakeScale,
			"flakeSpread":     m.FlakeSpread,
			"flakeJitter":     m.FlakeJitter,
			"flakeRoughness":  m.FlakeRoughness,
			"coat":            m.Coat,
			"coatIor":         m.CoatIOR,
			"coatColor":       mgl32.Vec3(m.CoatColor),
			"coatThickness":   m.CoatThickness,
			"coatRoughness":   m.CoatRoughness,
			"flipflopColor":   mgl32.Vec3(m.FlipflopColor),
			"flipflopFalloff": m.FlipflopFalloff,
		}, nil
	case *protocol.LuminousSettings:
		return map[string]any{
			"color":        mgl32.Vec3(m.Color),
			"intensity":    m.Intensity,
			"transparency": m.Transparency,
		}, nil
	}
	return nil, blerrors.New("B608").WithDetailf("material body %T", body)
}

// newMaterial creates and commits a material for the current renderer.
func (b *Binder) newMaterial(body protocol.MaterialBody) (device.Object, error) {
	params, err := materialParams(body)
	if err != nil {
		return nil, err
	}
	params["renderer"] = b.rendererType
	return b.newCommitted(device.KindMaterial, body.MaterialType().String(), params)
}

// newDefaultMaterial builds the material used when a link does not resolve.
func (b *Binder) newDefaultMaterial() (device.Object, error) {
	return b.newMaterial(&protocol.OBJMaterialSettings{
		Kd: [3]float32{0.8, 0.8, 0.8},
		Ns: 10,
		D:  1,
	})
}

// UpdateMaterial creates or replaces a named material. Objects using the
// name are rebuilt against the new handle.
func (b *Binder) UpdateMaterial(u *protocol.MaterialUpdate, body protocol.MaterialBody) error {
	if body.MaterialType() != u.Type {
		return blerrors.New("B608").WithDetailf("material %q announced %s but body is %s", u.Name, u.Type, body.MaterialType())
	}
	h, err := b.newMaterial(body)
	if err != nil {
		return err
	}
	if old, ok := b.materials[u.Name]; ok {
		old.handle.Release()
	}
	b.materials[u.Name] = &material{typ: u.Type, body: body, renderer: b.rendererType, handle: h}
	b.logger.Debug("material updated", "name", u.Name, "type", u.Type)
	return b.rebuild(b.mirror.ObjectsUsingMaterial(u.Name))
}

// recreateMaterials rebuilds every material and the default one for the
// current renderer type.
func (b *Binder) recreateMaterials() error {
	def, err := b.newDefaultMaterial()
	if err != nil {
		return err
	}
	b.defaultMaterial.Release()
	b.defaultMaterial = def
	for name, m := range b.materials {
		h, err := b.newMaterial(m.body)
		if err != nil {
			return fmt.Errorf("material %q: %w", name, err)
		}
		m.handle.Release()
		m.handle = h
		m.renderer = b.rendererType
	}
	return nil
}

// resolveMaterial returns the handle for a link, or the default material.
func (b *Binder) resolveMaterial(objectName, link string) (device.Object, bool) {
	if m, ok := b.materials[link]; ok {
		return m.handle, false
	}
	if link != "" {
		b.logger.Warn("material not found, using default", "object", objectName, "material", link)
	}
	return b.defaultMaterial, true
}
